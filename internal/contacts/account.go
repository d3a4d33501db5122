package contacts

import (
	"errors"
	"fmt"
	"os/exec"

	"howett.net/plist"
)

// ICloudAccount is the operator's cloud account as recorded by the OS.
type ICloudAccount struct {
	AccountID   string
	AccountDSID string
	DisplayName string
}

// AccountSource supplies the raw OS account-configuration payload. The
// default implementation shells out once; tests inject fixture payloads.
type AccountSource interface {
	ReadAccounts() ([]byte, error)
}

// DefaultsAccountSource reads the MobileMeAccounts domain via the defaults
// command, the same store Messages uses for the signed-in iCloud account.
type DefaultsAccountSource struct{}

// ReadAccounts implements AccountSource.
func (DefaultsAccountSource) ReadAccounts() ([]byte, error) {
	out, err := exec.Command("defaults", "export", "MobileMeAccounts", "-").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to read MobileMeAccounts: %w", err)
	}
	return out, nil
}

// ReadICloudAccount parses the first account out of the MobileMeAccounts
// plist. A missing or malformed payload is an error the caller is expected
// to tolerate; it only becomes fatal when the icloud identity is needed.
func ReadICloudAccount(src AccountSource) (*ICloudAccount, error) {
	if src == nil {
		return nil, errors.New("no account source configured")
	}
	raw, err := src.ReadAccounts()
	if err != nil {
		return nil, err
	}

	var payload struct {
		Accounts []struct {
			AccountID   string      `plist:"AccountID"`
			AccountDSID interface{} `plist:"AccountDSID"`
			DisplayName string      `plist:"DisplayName"`
		} `plist:"Accounts"`
	}
	if _, err := plist.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse MobileMeAccounts plist: %w", err)
	}
	if len(payload.Accounts) == 0 {
		return nil, errors.New("no accounts in MobileMeAccounts")
	}

	first := payload.Accounts[0]
	acct := &ICloudAccount{
		AccountID:   first.AccountID,
		DisplayName: first.DisplayName,
	}
	// DSID shows up as a string or a number depending on the OS revision.
	if first.AccountDSID != nil {
		acct.AccountDSID = fmt.Sprint(first.AccountDSID)
	}
	return acct, nil
}
