// Package plan models the restore definition document: one or more restore
// sets, each declaring where to discover backups and where to restore them.
package plan

import (
	"fmt"
	"sort"

	"sigs.k8s.io/yaml"

	"github.com/clumio-code/bulk-restore/internal/asset"
	resterrors "github.com/clumio-code/bulk-restore/internal/errors"
)

// Definition is the full input document for one invocation
type Definition struct {
	Token       string       `json:"token,omitempty"`
	BaseURL     string       `json:"base_url,omitempty"`
	RestoreSets []RestoreSet `json:"restore_sets"`
}

// RestoreSet is one source/target declaration covering one or more asset
// types. Restore sets execute independently.
type RestoreSet struct {
	Name          string                 `json:"name,omitempty"`
	SourceAccount string                 `json:"source_account"`
	SourceRegions []string               `json:"source_regions,omitempty"`
	AssetFilters  map[string]AssetFilter `json:"source_asset_types"`
	MetaStatus    MetaStatusFilter       `json:"asset_meta_status,omitempty"`
	Window        *SearchWindow          `json:"search_window,omitempty"`
	Targets       TargetSpecs            `json:"target_specs"`
	Cancelled     bool                   `json:"cancelled,omitempty"`
}

// AssetFilter selects backups of one asset type. Exactly one filter style is
// populated: a tag match (all pairs must match) or, for protection groups, a
// named-group list.
type AssetFilter struct {
	Tags             map[string]string       `json:"tags,omitempty"`
	ProtectionGroups []ProtectionGroupFilter `json:"protection_groups,omitempty"`
}

// ProtectionGroupFilter names one protection group and optionally narrows it
// to specific buckets
type ProtectionGroupFilter struct {
	Name        string   `json:"name"`
	BucketNames []string `json:"bucket_names,omitempty"`
}

// MetaStatusFilter narrows discovery by asset meta status. Values within one
// field are OR'd; fields are AND'd.
type MetaStatusFilter struct {
	ProtectionStatusIn []string `json:"protection_status_in,omitempty"`
	BackupStatusIn     []string `json:"backup_status_in,omitempty"`
	DeletedStatusIn    []string `json:"deleted_status_in,omitempty"`
}

// SearchWindow is an optional relative time window for point-in-time
// discovery. Absence means "most recent backup per resource, any time".
type SearchWindow struct {
	Direction      string `json:"search_direction,omitempty"` // "before" or "after"
	StartDayOffset int    `json:"start_search_day_offset,omitempty"`
	EndDayOffset   int    `json:"end_search_day_offset,omitempty"`
	MaxWindowDays  int    `json:"max_window_days,omitempty"` // 0 = unbounded
}

// TargetSpecs holds the target account plus one block per asset type
type TargetSpecs struct {
	TargetAccount   string               `json:"target_account"`
	EBS             *EBSTarget           `json:"EBS,omitempty"`
	EC2             *EC2Target           `json:"EC2,omitempty"`
	RDS             *RDSTarget           `json:"RDS,omitempty"`
	DynamoDB        *DynamoDBTarget      `json:"DynamoDB,omitempty"`
	ProtectionGroup *ProtectionGroupTarget `json:"ProtectionGroup,omitempty"`
}

// Has reports whether a target block exists for the asset type
func (t TargetSpecs) Has(at asset.Type) bool {
	switch at {
	case asset.TypeEBS:
		return t.EBS != nil
	case asset.TypeEC2:
		return t.EC2 != nil
	case asset.TypeRDS:
		return t.RDS != nil
	case asset.TypeDynamoDB:
		return t.DynamoDB != nil
	case asset.TypeProtectionGroup:
		return t.ProtectionGroup != nil
	}
	return false
}

// EBSTarget is the user-declared EBS restore target. Unset fields inherit
// from the discovered backup's recorded configuration.
type EBSTarget struct {
	TargetRegion     string            `json:"target_region,omitempty"`
	TargetAZ         string            `json:"target_az,omitempty"`
	TargetVolumeType string            `json:"target_volume_type,omitempty"`
	TargetIOPS       int64             `json:"target_iops,omitempty"`
	TargetKMSKeyID   string            `json:"target_kms_key_native_id,omitempty"`
	AppendTags       map[string]string `json:"append_tags,omitempty"`
}

// EC2Target is the user-declared EC2 restore target
type EC2Target struct {
	TargetRegion       string            `json:"target_region,omitempty"`
	TargetAZ           string            `json:"target_az,omitempty"`
	TargetAMIID        string            `json:"target_ami_native_id,omitempty"`
	TargetVPCID        string            `json:"target_vpc_native_id,omitempty"`
	TargetSubnetID     string            `json:"target_subnet_native_id,omitempty"`
	TargetKMSKeyID     string            `json:"target_kms_key_native_id,omitempty"`
	TargetIAMProfile   string            `json:"target_iam_instance_profile_name,omitempty"`
	TargetKeyPairName  string            `json:"target_key_pair_name,omitempty"`
	TargetSecurityGroupIDs []string      `json:"target_security_group_native_ids,omitempty"`
	ShouldPowerOn      bool              `json:"should_power_on,omitempty"`
	AppendTags         map[string]string `json:"append_tags,omitempty"`
}

// RDSTarget is the user-declared RDS restore target
type RDSTarget struct {
	TargetRegion           string            `json:"target_region,omitempty"`
	TargetSubnetGroupName  string            `json:"target_subnet_group_name,omitempty"`
	TargetRDSName          string            `json:"target_rds_name,omitempty"`
	TargetKMSKeyID         string            `json:"target_kms_key_native_id,omitempty"`
	TargetSecurityGroupIDs []string          `json:"target_security_group_native_ids,omitempty"`
	AppendTags             map[string]string `json:"append_tags,omitempty"`
}

// DynamoDBTarget is the user-declared DynamoDB restore target
type DynamoDBTarget struct {
	TargetRegion  string            `json:"target_region,omitempty"`
	ChangeSetName string            `json:"change_set_name"`
	AppendTags    map[string]string `json:"append_tags,omitempty"`
}

// ProtectionGroupTarget is the user-declared protection-group (S3) restore
// target
type ProtectionGroupTarget struct {
	TargetRegion        string             `json:"target_region,omitempty"`
	TargetBucket        string             `json:"target_bucket"`
	TargetPrefix        string             `json:"target_prefix,omitempty"`
	SearchObjectFilters *ObjectFilterSpec  `json:"search_object_filters,omitempty"`
}

// ObjectFilterSpec narrows a protection-group restore to matching objects
type ObjectFilterSpec struct {
	LatestVersionOnly *bool    `json:"latest_version_only,omitempty"`
	PrefixFilters     []string `json:"prefix_filters,omitempty"`
	StorageClasses    []string `json:"storage_classes,omitempty"`
}

// Load parses a restore definition from JSON or YAML and validates it
func Load(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, resterrors.NewValidationError(resterrors.ErrCodeInvalidInput,
			"restore definition is not valid JSON or YAML").WithCause(err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	def.applyNames()
	return &def, nil
}

// applyNames assigns stable fallback identifiers to unnamed restore sets
func (d *Definition) applyNames() {
	for i := range d.RestoreSets {
		if d.RestoreSets[i].Name == "" {
			d.RestoreSets[i].Name = fmt.Sprintf("restore-set-%d", i+1)
		}
	}
}

// Validate checks the whole document
func (d *Definition) Validate() error {
	if len(d.RestoreSets) == 0 {
		return resterrors.NewValidationError(resterrors.ErrCodeMissingField,
			"restore definition declares no restore sets")
	}
	for i := range d.RestoreSets {
		if err := d.RestoreSets[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks one restore set. Validation failures here are fatal to the
// offending set only; the caller decides whether to continue with siblings.
func (s *RestoreSet) Validate() error {
	if s.SourceAccount == "" {
		return resterrors.NewValidationError(resterrors.ErrCodeMissingField,
			fmt.Sprintf("restore set %q: source_account is required", s.Name))
	}
	if s.Targets.TargetAccount == "" {
		return resterrors.NewValidationError(resterrors.ErrCodeMissingField,
			fmt.Sprintf("restore set %q: target_specs.target_account is required", s.Name))
	}
	if len(s.AssetFilters) == 0 {
		return resterrors.NewValidationError(resterrors.ErrCodeMissingField,
			fmt.Sprintf("restore set %q: source_asset_types declares no asset types", s.Name))
	}

	for name, f := range s.AssetFilters {
		at, err := asset.ParseType(name)
		if err != nil {
			return resterrors.NewValidationError(resterrors.ErrCodeInvalidInput,
				fmt.Sprintf("restore set %q: %v", s.Name, err))
		}

		hasTags := len(f.Tags) > 0
		hasGroups := len(f.ProtectionGroups) > 0
		if hasTags == hasGroups {
			return resterrors.NewValidationError(resterrors.ErrCodeInvalidInput,
				fmt.Sprintf("restore set %q: asset type %s must declare exactly one filter style", s.Name, name))
		}
		if hasGroups && at != asset.TypeProtectionGroup {
			return resterrors.NewValidationError(resterrors.ErrCodeInvalidInput,
				fmt.Sprintf("restore set %q: named-group filters only apply to ProtectionGroup, not %s", s.Name, name))
		}
		if hasTags && at == asset.TypeProtectionGroup {
			return resterrors.NewValidationError(resterrors.ErrCodeInvalidInput,
				fmt.Sprintf("restore set %q: ProtectionGroup requires a named-group filter", s.Name))
		}

		// The target map must cover every filtered asset type, or target
		// resolution would fail after discovery already ran.
		if !s.Targets.Has(at) {
			return resterrors.NewValidationError(resterrors.ErrCodeTargetMismatch,
				fmt.Sprintf("restore set %q: asset type %s is filtered but has no target spec", s.Name, name))
		}
	}

	if s.Targets.DynamoDB != nil && s.Targets.DynamoDB.ChangeSetName == "" {
		return resterrors.NewValidationError(resterrors.ErrCodeMissingField,
			fmt.Sprintf("restore set %q: DynamoDB target requires change_set_name", s.Name))
	}
	if s.Targets.ProtectionGroup != nil && s.Targets.ProtectionGroup.TargetBucket == "" {
		return resterrors.NewValidationError(resterrors.ErrCodeMissingField,
			fmt.Sprintf("restore set %q: ProtectionGroup target requires target_bucket", s.Name))
	}

	return nil
}

// AssetTypes returns the filtered asset types in stable order
func (s *RestoreSet) AssetTypes() []asset.Type {
	types := make([]asset.Type, 0, len(s.AssetFilters))
	for name := range s.AssetFilters {
		if at, err := asset.ParseType(name); err == nil {
			types = append(types, at)
		}
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// CrossAccount reports whether the set restores into a different account
// than it discovers from
func (s *RestoreSet) CrossAccount() bool {
	return s.SourceAccount != s.Targets.TargetAccount
}
