package config

import (
	"errors"
	"fmt"
	"os"

	ksm "github.com/keeper-security/secrets-manager-go/core"
	"keepersecurity.com/iam-sync/reconcile"
)

const (
	KsmConfigEnv    = "KSM_CONFIG_BASE64"
	KsmRecordUidEnv = "KSM_RECORD_UID"

	ConfigAttachment      = "iam-sync.yaml"
	CredentialsAttachment = "credentials.json"
)

// secretRecord is the part of a KSM record the configuration is read from.
type secretRecord interface {
	Type() string
	GetFieldValueByType(fieldType string) string
	Password() string
	GetCustomFieldsByLabel(label string) []map[string]interface{}
}

// LoadFromSecretsManager finds the login record shared to the KSM application that carries
// the configuration attachment and builds the configuration from it.
func LoadFromSecretsManager() (cfg *Config, err error) {
	var configBase64 = os.Getenv(KsmConfigEnv)
	if len(configBase64) == 0 {
		err = fmt.Errorf("environment variable \"%s\" is not set", KsmConfigEnv)
		return
	}
	var sm = ksm.NewSecretsManager(&ksm.ClientOptions{
		Config: ksm.NewMemoryKeyValueStorage(configBase64),
	})

	var filter []string
	if recordUid := os.Getenv(KsmRecordUidEnv); len(recordUid) > 0 {
		filter = append(filter, recordUid)
	}
	var records []*ksm.Record
	if records, err = sm.GetSecrets(filter); err != nil {
		return
	}

	for _, r := range records {
		if r.Type() != "login" {
			continue
		}
		if len(r.FindFiles(ConfigAttachment)) == 0 {
			continue
		}
		return LoadFromKsmRecord(r)
	}
	err = errors.New("IAM sync record was not found. Make sure the record is valid and shared to KSM application")
	return
}

func LoadFromKsmRecord(record *ksm.Record) (cfg *Config, err error) {
	var files = record.FindFiles(ConfigAttachment)
	if len(files) == 0 {
		err = fmt.Errorf("record does not have \"%s\" attachment", ConfigAttachment)
		return
	}
	var credentials []byte
	if attachments := record.FindFiles(CredentialsAttachment); len(attachments) > 0 {
		credentials = attachments[0].GetFileData()
	}
	return fromRecord(record, files[0].GetFileData(), credentials)
}

func fromRecord(record secretRecord, document []byte, credentials []byte) (cfg *Config, err error) {
	if cfg, err = Parse(document); err != nil {
		return
	}
	if len(credentials) > 0 {
		cfg.Google.Credentials = credentials
	}

	if v := record.GetFieldValueByType("url"); len(v) > 0 {
		cfg.Rucio.Url = v
	}
	if v := record.GetFieldValueByType("login"); len(v) > 0 {
		cfg.Rucio.Username = v
	}
	if v := record.Password(); len(v) > 0 {
		cfg.Rucio.Password = v
	}

	var fields = record.GetCustomFieldsByLabel("IAM Client Secret")
	if len(fields) > 0 {
		if sv, ok := fieldString(fields[0]["value"]); ok && len(sv) > 0 {
			cfg.Iam.ClientSecret = sv
		}
	}
	fields = record.GetCustomFieldsByLabel("Rucio Account")
	if len(fields) > 0 {
		if sv, ok := fieldString(fields[0]["value"]); ok && len(sv) > 0 {
			cfg.Rucio.Account = sv
		}
	}
	fields = record.GetCustomFieldsByLabel("Dry Run")
	if len(fields) > 0 {
		if bv, ok := reconcile.ToBoolean(fields[0]["value"]); ok {
			cfg.Sync.DryRun = bv
		}
	}
	fields = record.GetCustomFieldsByLabel("Verbose")
	if len(fields) > 0 {
		if bv, ok := reconcile.ToBoolean(fields[0]["value"]); ok {
			cfg.Sync.Verbose = bv
		}
	}
	return
}

func fieldString(value any) (result string, ok bool) {
	if av, isList := value.([]any); isList {
		if len(av) == 0 {
			return
		}
		value = av[0]
	}
	return reconcile.ToString(value)
}
