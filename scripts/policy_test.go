package scripts

import (
	"errors"
	"testing"
)

func TestValidateCSV(t *testing.T) {
	tests := []struct {
		name    string
		csv     uint32
		wantErr bool
	}{
		{"zero", 0, false},
		{"max block count", 0x0000ffff, false},
		{"typical", 145, false},
		{"disable flag set", SequenceLocktimeDisableFlag, true},
		{"type flag set", SequenceLocktimeTypeFlag, true},
		{"bits above mask", 0x00010000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateCSV(tt.csv)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateCSV(%#x) error = %v, wantErr %v", tt.csv, err, tt.wantErr)
			}
		})
	}
}

// TestDepositScriptSizeLimit reproduces scenario S1: 99 stakeholders compiles, 100 fails.
func TestDepositScriptSizeLimit(t *testing.T) {
	ok := testRawPubkeys(t, 99)
	if _, err := buildDepositScript(ok); err != nil {
		t.Errorf("99 stakeholders: unexpected error: %v", err)
	}

	tooMany := testRawPubkeys(t, 100)
	if _, err := buildDepositScript(tooMany); !errors.Is(err, ErrLimitsExceeded) {
		t.Errorf("100 stakeholders: error = %v, want ErrLimitsExceeded", err)
	}
}

// TestCpfpMultisigLimit reproduces scenario S2: 20 managers compiles, 21 fails.
func TestCpfpMultisigLimit(t *testing.T) {
	ok := testRawPubkeys(t, MaxPubkeysPerMultisig)
	if _, err := buildCpfpScript(ok); err != nil {
		t.Errorf("%d managers: unexpected error: %v", MaxPubkeysPerMultisig, err)
	}

	tooMany := testRawPubkeys(t, MaxPubkeysPerMultisig+1)
	if _, err := buildCpfpScript(tooMany); !errors.Is(err, ErrLimitsExceeded) {
		t.Errorf("%d managers: error = %v, want ErrLimitsExceeded", MaxPubkeysPerMultisig+1, err)
	}
}

// TestUnvaultScriptSizeLimit reproduces scenario S3: with 2 fixed managers (threshold 2)
// and csv 145, 38 stakeholders compiles, 39 fails.
func TestUnvaultScriptSizeLimit(t *testing.T) {
	managers := testRawPubkeys(t, 2)
	const csv = 145

	ok := testRawPubkeys(t, 38)
	if _, err := buildUnvaultScript(ok, managers, 2, ok, csv); err != nil {
		t.Errorf("38 stakeholders: unexpected error: %v", err)
	}

	tooMany := testRawPubkeys(t, 39)
	if _, err := buildUnvaultScript(tooMany, managers, 2, tooMany, csv); !errors.Is(err, ErrLimitsExceeded) {
		t.Errorf("39 stakeholders: error = %v, want ErrLimitsExceeded", err)
	}
}

func TestBuildDepositScriptRejectsSingleStakeholder(t *testing.T) {
	single := testRawPubkeys(t, 1)
	if _, err := buildDepositScript(single); !errors.Is(err, ErrBadParameters) {
		t.Errorf("1 stakeholder: error = %v, want ErrBadParameters", err)
	}
}

func TestBuildUnvaultScriptRejectsMismatchedCosigners(t *testing.T) {
	stakeholders := testRawPubkeys(t, 3)
	managers := testRawPubkeys(t, 2)
	cosigners := testRawPubkeys(t, 2)
	if _, err := buildUnvaultScript(stakeholders, managers, 2, cosigners, 145); !errors.Is(err, ErrBadParameters) {
		t.Errorf("mismatched cosigner count: error = %v, want ErrBadParameters", err)
	}
}
