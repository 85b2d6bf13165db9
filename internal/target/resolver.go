// Package target resolves declared restore targets against discovered
// backups into fully-specified restore requests.
//
// Resolution is an overlay merge: every field the user set in the target
// spec wins, and every field left unset inherits the value recorded in the
// backup. Identifiers scoped to the source account, KMS keys and EC2 launch
// dependencies, never inherit across accounts and must be named in the spec.
// The merge is pure per (backup, spec) pair; resolving the same inputs twice
// yields the same request.
package target

import (
	"context"
	"fmt"
	"strings"

	"github.com/clumio-code/bulk-restore/internal/api"
	"github.com/clumio-code/bulk-restore/internal/asset"
	resterrors "github.com/clumio-code/bulk-restore/internal/errors"
	"github.com/clumio-code/bulk-restore/internal/logger"
	"github.com/clumio-code/bulk-restore/internal/plan"
)

// iopsVolumeTypes are the EBS volume types that accept provisioned IOPS
var iopsVolumeTypes = map[string]bool{
	"gp3": true,
	"io1": true,
	"io2": true,
}

// Environments is the slice of the provider the resolver needs to bind
// targets to connected environments
type Environments interface {
	ResolveEnvironment(ctx context.Context, account, region string) (string, error)
	FindBucket(ctx context.Context, account, region, name string) (bucketID, environmentID string, err error)
}

// Resolver turns (discovered backup, target spec) pairs into restore
// requests
type Resolver struct {
	envs     Environments
	log      logger.Logger
	runToken string
}

// NewResolver creates a resolver. The run token disambiguates restored
// resource names across invocations.
func NewResolver(envs Environments, log logger.Logger, runToken string) *Resolver {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Resolver{envs: envs, log: log, runToken: runToken}
}

// Resolve builds the restore request for one discovered backup. Validation
// failures return an IncompatibleTargetError and never reach the provider.
func (r *Resolver) Resolve(ctx context.Context, set *plan.RestoreSet, d asset.Discovered) (*api.RestoreRequest, error) {
	req := &api.RestoreRequest{
		Type:     d.Type,
		BackupID: d.BackupID,
		RunToken: r.runToken,
	}

	var err error
	switch d.Type {
	case asset.TypeEBS:
		req.EBS, err = r.resolveEBS(ctx, set, d)
	case asset.TypeEC2:
		req.EC2, err = r.resolveEC2(ctx, set, d)
	case asset.TypeRDS:
		req.RDS, err = r.resolveRDS(ctx, set, d)
	case asset.TypeDynamoDB:
		req.DynamoDB, err = r.resolveDynamoDB(ctx, set, d)
	case asset.TypeProtectionGroup:
		req.ProtectionGroup, err = r.resolveProtectionGroup(ctx, set, d)
	default:
		err = resterrors.NewInternalError(resterrors.ErrCodeLogicError,
			fmt.Sprintf("no resolver for asset type %s", d.Type))
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *Resolver) resolveEBS(ctx context.Context, set *plan.RestoreSet, d asset.Discovered) (*api.EBSRestoreTarget, error) {
	spec := set.Targets.EBS
	rec := d.EBS

	// Encryption keys never inherit across accounts: the recorded key
	// belongs to the source account and the target cannot use it.
	kms := spec.TargetKMSKeyID
	if set.CrossAccount() {
		if kms == "" {
			return nil, resterrors.NewIncompatibleTargetError(fmt.Sprintf(
				"restore set %q: cross-account restore of volume %s requires target_kms_key_native_id",
				set.Name, rec.VolumeID))
		}
	} else {
		kms = pick(spec.TargetKMSKeyID, rec.KMSKeyID)
	}

	out := &api.EBSRestoreTarget{
		AZ:         pick(spec.TargetAZ, rec.AZ),
		VolumeType: pick(spec.TargetVolumeType, rec.VolumeType),
		KMSKeyID:   kms,
		Tags:       asset.AppendTags(rec.Tags, spec.AppendTags),
	}

	// IOPS only inherits when the merged volume type still supports it;
	// otherwise the recorded value is silently dropped.
	if spec.TargetIOPS > 0 {
		if !iopsVolumeTypes[out.VolumeType] {
			return nil, resterrors.NewIncompatibleTargetError(fmt.Sprintf(
				"restore set %q: target_iops requires volume type gp3, io1 or io2, got %q",
				set.Name, out.VolumeType))
		}
		out.IOPS = spec.TargetIOPS
	} else if iopsVolumeTypes[out.VolumeType] {
		out.IOPS = rec.IOPS
	}

	envID, err := r.resolveEnv(ctx, set, spec.TargetRegion, d.Region)
	if err != nil {
		return nil, err
	}
	out.EnvironmentID = envID
	return out, nil
}

func (r *Resolver) resolveEC2(ctx context.Context, set *plan.RestoreSet, d asset.Discovered) (*api.EC2RestoreTarget, error) {
	spec := set.Targets.EC2
	rec := d.EC2

	// Recorded launch configuration is source-account scoped. A cross-account
	// restore must name every launch dependency in the target account
	// explicitly; none of the recorded identifiers are valid there.
	if set.CrossAccount() {
		var missing []string
		for _, f := range []struct{ name, val string }{
			{"target_ami_native_id", spec.TargetAMIID},
			{"target_vpc_native_id", spec.TargetVPCID},
			{"target_subnet_native_id", spec.TargetSubnetID},
			{"target_kms_key_native_id", spec.TargetKMSKeyID},
			{"target_iam_instance_profile_name", spec.TargetIAMProfile},
			{"target_key_pair_name", spec.TargetKeyPairName},
		} {
			if f.val == "" {
				missing = append(missing, f.name)
			}
		}
		if len(missing) > 0 {
			return nil, resterrors.NewIncompatibleTargetError(fmt.Sprintf(
				"restore set %q: cross-account restore of instance %s requires %s",
				set.Name, rec.InstanceID, strings.Join(missing, ", ")))
		}
	}

	out := &api.EC2RestoreTarget{
		AZ:            pick(spec.TargetAZ, rec.AZ),
		AMIID:         spec.TargetAMIID,
		ShouldPowerOn: spec.ShouldPowerOn,
		Tags:          asset.AppendTags(rec.Tags, spec.AppendTags),
	}

	if set.CrossAccount() {
		out.VPCID = spec.TargetVPCID
		out.SubnetID = spec.TargetSubnetID
		out.KeyPairName = spec.TargetKeyPairName
		out.IAMProfileName = spec.TargetIAMProfile
	} else {
		out.VPCID = pick(spec.TargetVPCID, rec.VPCID)
		out.SubnetID = spec.TargetSubnetID
		out.KeyPairName = pick(spec.TargetKeyPairName, rec.KeyPairName)
		out.IAMProfileName = pick(spec.TargetIAMProfile, rec.IAMProfileName)
	}

	for _, bd := range rec.BlockDevices {
		bdKey := spec.TargetKMSKeyID
		if !set.CrossAccount() {
			bdKey = pick(spec.TargetKMSKeyID, bd.KMSKeyID)
		}
		out.BlockDevices = append(out.BlockDevices, api.EC2BlockDevice{
			Name:           bd.Name,
			VolumeNativeID: bd.VolumeNativeID,
			KMSKeyID:       bdKey,
			Tags:           bd.Tags,
		})
	}

	groups := spec.TargetSecurityGroupIDs
	if len(groups) == 0 {
		groups = rec.SecurityGroupIDs
	}
	for _, ni := range rec.NetworkInterfaces {
		eni := api.EC2RestoreENI{
			DeviceIndex:      ni.DeviceIndex,
			SubnetNativeID:   pick(spec.TargetSubnetID, ni.SubnetNativeID),
			SecurityGroupIDs: groups,
		}
		if len(eni.SecurityGroupIDs) == 0 {
			eni.SecurityGroupIDs = ni.SecurityGroupIDs
		}
		// Same-account restores without overrides reuse the recorded
		// interface configuration wholesale.
		eni.RestoreDefault = !set.CrossAccount() && spec.TargetSubnetID == "" && len(spec.TargetSecurityGroupIDs) == 0
		out.NetworkInterfaces = append(out.NetworkInterfaces, eni)
	}
	if len(out.NetworkInterfaces) == 0 && spec.TargetSubnetID == "" {
		return nil, resterrors.NewIncompatibleTargetError(fmt.Sprintf(
			"restore set %q: instance %s recorded no network interfaces; target_subnet_native_id is required",
			set.Name, rec.InstanceID))
	}

	envID, err := r.resolveEnv(ctx, set, spec.TargetRegion, d.Region)
	if err != nil {
		return nil, err
	}
	out.EnvironmentID = envID
	return out, nil
}

func (r *Resolver) resolveRDS(ctx context.Context, set *plan.RestoreSet, d asset.Discovered) (*api.RDSRestoreTarget, error) {
	spec := set.Targets.RDS
	rec := d.RDS

	// Restoring next to the live resource needs a fresh identifier; the
	// run token keeps repeated invocations from colliding too.
	name := spec.TargetRDSName
	if name == "" {
		if !set.CrossAccount() {
			return nil, resterrors.NewIncompatibleTargetError(fmt.Sprintf(
				"restore set %q: same-account RDS restore of %s requires target_rds_name",
				set.Name, rec.ResourceName))
		}
		name = compositeName(rec.ResourceName, r.runToken, 63)
	}

	// The recorded key is source-account scoped and never crosses accounts.
	kms := spec.TargetKMSKeyID
	if set.CrossAccount() {
		if kms == "" {
			return nil, resterrors.NewIncompatibleTargetError(fmt.Sprintf(
				"restore set %q: cross-account restore of RDS resource %s requires target_kms_key_native_id",
				set.Name, rec.ResourceName))
		}
	} else {
		kms = pick(spec.TargetKMSKeyID, rec.KMSKeyID)
	}

	out := &api.RDSRestoreTarget{
		Name:            name,
		SubnetGroupName: pick(spec.TargetSubnetGroupName, rec.SubnetGroupName),
		KMSKeyID:        kms,
		Tags:            asset.AppendTags(rec.Tags, spec.AppendTags),
	}
	out.SecurityGroupIDs = spec.TargetSecurityGroupIDs
	if len(out.SecurityGroupIDs) == 0 {
		out.SecurityGroupIDs = rec.SecurityGroupIDs
	}

	envID, err := r.resolveEnv(ctx, set, spec.TargetRegion, d.Region)
	if err != nil {
		return nil, err
	}
	out.EnvironmentID = envID
	return out, nil
}

func (r *Resolver) resolveDynamoDB(ctx context.Context, set *plan.RestoreSet, d asset.Discovered) (*api.DynamoDBRestoreTarget, error) {
	spec := set.Targets.DynamoDB
	rec := d.DynamoDB

	out := &api.DynamoDBRestoreTarget{
		TableName: compositeName(rec.TableName, spec.ChangeSetName, 255),
		Tags:      asset.AppendTags(rec.Tags, spec.AppendTags),
	}

	envID, err := r.resolveEnv(ctx, set, spec.TargetRegion, d.Region)
	if err != nil {
		return nil, err
	}
	out.EnvironmentID = envID
	return out, nil
}

func (r *Resolver) resolveProtectionGroup(ctx context.Context, set *plan.RestoreSet, d asset.Discovered) (*api.ProtectionGroupRestoreTarget, error) {
	spec := set.Targets.ProtectionGroup
	rec := d.ProtectionGroup

	region := spec.TargetRegion
	if region == "" {
		region = d.Region
	}
	bucketID, envID, err := r.envs.FindBucket(ctx, set.Targets.TargetAccount, region, spec.TargetBucket)
	if err != nil {
		return nil, err
	}
	if bucketID == "" {
		return nil, resterrors.NewIncompatibleTargetError(fmt.Sprintf(
			"restore set %q: target bucket %q not found in account %s region %s",
			set.Name, spec.TargetBucket, set.Targets.TargetAccount, region))
	}

	out := &api.ProtectionGroupRestoreTarget{
		EnvironmentID: envID,
		BucketID:      bucketID,
		Prefix:        spec.TargetPrefix,
		AssetIDs:      rec.AssetIDs,
	}
	if spec.SearchObjectFilters != nil {
		f := &api.ObjectFilters{
			LatestVersionOnly: true,
			PrefixFilters:     spec.SearchObjectFilters.PrefixFilters,
			StorageClasses:    spec.SearchObjectFilters.StorageClasses,
		}
		if spec.SearchObjectFilters.LatestVersionOnly != nil {
			f.LatestVersionOnly = *spec.SearchObjectFilters.LatestVersionOnly
		}
		out.ObjectFilters = f
	}
	return out, nil
}

// resolveEnv binds the request to the target environment: the declared
// target region when set, else the backup's source region.
func (r *Resolver) resolveEnv(ctx context.Context, set *plan.RestoreSet, targetRegion, sourceRegion string) (string, error) {
	region := pick(targetRegion, sourceRegion)
	return r.envs.ResolveEnvironment(ctx, set.Targets.TargetAccount, region)
}

// pick returns the override when set, else the recorded fallback
func pick(override, recorded string) string {
	if override != "" {
		return override
	}
	return recorded
}

// compositeName joins a base name and suffix under a length ceiling,
// trimming the base, never the suffix
func compositeName(base, suffix string, maxLen int) string {
	joined := base + "-" + suffix
	if len(joined) <= maxLen {
		return joined
	}
	keep := maxLen - len(suffix) - 1
	if keep < 1 {
		keep = 1
	}
	return strings.TrimRight(base[:keep], "-") + "-" + suffix
}
