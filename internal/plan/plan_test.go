package plan

import (
	"strings"
	"testing"

	"github.com/clumio-code/bulk-restore/internal/asset"
	resterrors "github.com/clumio-code/bulk-restore/internal/errors"
)

func validDefinition() string {
	return `{
  "restore_sets": [
    {
      "source_account": "111111111111",
      "source_regions": ["us-west-2"],
      "source_asset_types": {
        "EBS": {"tags": {"env": "prod"}}
      },
      "target_specs": {
        "target_account": "222222222222",
        "EBS": {"target_region": "us-east-1"}
      }
    }
  ]
}`
}

func TestLoadValid(t *testing.T) {
	def, err := Load([]byte(validDefinition()))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(def.RestoreSets) != 1 {
		t.Fatalf("got %d restore sets, want 1", len(def.RestoreSets))
	}
	set := def.RestoreSets[0]
	if set.Name != "restore-set-1" {
		t.Errorf("fallback name = %q, want restore-set-1", set.Name)
	}
	if !set.CrossAccount() {
		t.Error("CrossAccount() = false, want true")
	}
}

func TestLoadYAML(t *testing.T) {
	doc := `
restore_sets:
  - source_account: "111111111111"
    source_asset_types:
      RDS:
        tags:
          team: data
    target_specs:
      target_account: "111111111111"
      RDS:
        target_rds_name: restored-db
`
	def, err := Load([]byte(doc))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if def.RestoreSets[0].Targets.RDS.TargetRDSName != "restored-db" {
		t.Errorf("TargetRDSName = %q", def.RestoreSets[0].Targets.RDS.TargetRDSName)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(s *RestoreSet)
		wantCode resterrors.ErrorCode
		wantMsg  string
	}{
		{
			name:     "missing source account",
			mutate:   func(s *RestoreSet) { s.SourceAccount = "" },
			wantCode: resterrors.ErrCodeMissingField,
			wantMsg:  "source_account",
		},
		{
			name:     "missing target account",
			mutate:   func(s *RestoreSet) { s.Targets.TargetAccount = "" },
			wantCode: resterrors.ErrCodeMissingField,
			wantMsg:  "target_account",
		},
		{
			name: "no asset filters",
			mutate: func(s *RestoreSet) {
				s.AssetFilters = nil
			},
			wantCode: resterrors.ErrCodeMissingField,
			wantMsg:  "no asset types",
		},
		{
			name: "both filter styles",
			mutate: func(s *RestoreSet) {
				f := s.AssetFilters["EBS"]
				f.ProtectionGroups = []ProtectionGroupFilter{{Name: "pg"}}
				s.AssetFilters["EBS"] = f
			},
			wantCode: resterrors.ErrCodeInvalidInput,
			wantMsg:  "exactly one filter style",
		},
		{
			name: "filtered type without target",
			mutate: func(s *RestoreSet) {
				s.AssetFilters["RDS"] = AssetFilter{Tags: map[string]string{"a": "b"}}
			},
			wantCode: resterrors.ErrCodeTargetMismatch,
			wantMsg:  "no target spec",
		},
		{
			name: "named groups on non-PG type",
			mutate: func(s *RestoreSet) {
				s.AssetFilters["EBS"] = AssetFilter{
					ProtectionGroups: []ProtectionGroupFilter{{Name: "pg"}},
				}
			},
			wantCode: resterrors.ErrCodeInvalidInput,
			wantMsg:  "named-group filters",
		},
		{
			name: "PG type with tag filter",
			mutate: func(s *RestoreSet) {
				s.AssetFilters["ProtectionGroup"] = AssetFilter{Tags: map[string]string{"a": "b"}}
				s.Targets.ProtectionGroup = &ProtectionGroupTarget{TargetBucket: "restore-bucket"}
			},
			wantCode: resterrors.ErrCodeInvalidInput,
			wantMsg:  "named-group filter",
		},
		{
			name: "dynamodb without change set name",
			mutate: func(s *RestoreSet) {
				s.AssetFilters["DynamoDB"] = AssetFilter{Tags: map[string]string{"a": "b"}}
				s.Targets.DynamoDB = &DynamoDBTarget{}
			},
			wantCode: resterrors.ErrCodeMissingField,
			wantMsg:  "change_set_name",
		},
		{
			name: "protection group without target bucket",
			mutate: func(s *RestoreSet) {
				s.AssetFilters["ProtectionGroup"] = AssetFilter{
					ProtectionGroups: []ProtectionGroupFilter{{Name: "pg"}},
				}
				s.Targets.ProtectionGroup = &ProtectionGroupTarget{}
			},
			wantCode: resterrors.ErrCodeMissingField,
			wantMsg:  "target_bucket",
		},
		{
			name: "unknown asset type",
			mutate: func(s *RestoreSet) {
				s.AssetFilters["Lambda"] = AssetFilter{Tags: map[string]string{"a": "b"}}
			},
			wantCode: resterrors.ErrCodeInvalidInput,
			wantMsg:  "asset type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := Load([]byte(validDefinition()))
			if err != nil {
				t.Fatalf("baseline Load() error = %v", err)
			}
			tt.mutate(&def.RestoreSets[0])
			err = def.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if got := resterrors.GetCode(err); got != tt.wantCode {
				t.Errorf("error code = %s, want %s", got, tt.wantCode)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestLoadGarbage(t *testing.T) {
	if _, err := Load([]byte("{not json")); err == nil {
		t.Fatal("Load() accepted malformed input")
	}
}

func TestAssetTypesStableOrder(t *testing.T) {
	set := RestoreSet{
		AssetFilters: map[string]AssetFilter{
			"RDS": {Tags: map[string]string{"a": "b"}},
			"EBS": {Tags: map[string]string{"a": "b"}},
			"EC2": {Tags: map[string]string{"a": "b"}},
		},
	}
	got := set.AssetTypes()
	want := []asset.Type{asset.TypeEBS, asset.TypeEC2, asset.TypeRDS}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
