package api

import (
	"encoding/json"
	"time"

	"github.com/clumio-code/bulk-restore/internal/asset"
)

// Wire shapes of the backup catalog items. Only the fields the restore flow
// needs are decoded; the rest of the payload is ignored.

type backupItemCommon struct {
	ID                  string      `json:"id"`
	AccountNativeID     string      `json:"account_native_id"`
	AWSRegion           string      `json:"aws_region"`
	StartTimestamp      string      `json:"start_timestamp"`
	ExpirationTimestamp string      `json:"expiration_timestamp"`
	Tags                []asset.Tag `json:"tags"`
}

func (b backupItemCommon) fill(t asset.Type, resourceID string) asset.Discovered {
	return asset.Discovered{
		Type:       t,
		Account:    b.AccountNativeID,
		Region:     b.AWSRegion,
		ResourceID: resourceID,
		BackupID:   b.ID,
		StartTime:  parseTimestamp(b.StartTimestamp),
		ExpireTime: parseTimestamp(b.ExpirationTimestamp),
	}
}

// parseTimestamp decodes the provider's ISO-8601 timestamps; a zero time
// marks an absent or malformed value
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}

type ebsBackupItem struct {
	backupItemCommon
	VolumeNativeID string `json:"volume_native_id"`
	AWSAz          string `json:"aws_az"`
	VolumeType     string `json:"volume_type"`
	IOPS           int64  `json:"iops"`
	KMSKeyNativeID string `json:"kms_key_native_id"`
	IsEncrypted    bool   `json:"is_encrypted"`
}

func decodeEBS(raw json.RawMessage) ([]asset.Discovered, error) {
	var items []ebsBackupItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	out := make([]asset.Discovered, 0, len(items))
	for _, item := range items {
		d := item.fill(asset.TypeEBS, item.VolumeNativeID)
		d.EBS = &asset.EBSBackup{
			VolumeID:   item.VolumeNativeID,
			AZ:         item.AWSAz,
			VolumeType: item.VolumeType,
			IOPS:       item.IOPS,
			KMSKeyID:   item.KMSKeyNativeID,
			Encrypted:  item.IsEncrypted,
			Tags:       item.Tags,
		}
		out = append(out, d)
	}
	return out, nil
}

type ec2BackupItem struct {
	backupItemCommon
	InstanceNativeID       string `json:"instance_native_id"`
	AWSAz                  string `json:"aws_az"`
	VPCNativeID            string `json:"vpc_native_id"`
	KeyPairName            string `json:"key_pair_name"`
	IAMInstanceProfileName string `json:"iam_instance_profile_name"`
	KMSKeyNativeID         string `json:"kms_key_native_id"`
	SecurityGroupNativeIDs []string `json:"security_group_native_ids"`
	AttachedBackupEBSVolumes []struct {
		Name           string      `json:"name"`
		VolumeNativeID string      `json:"volume_native_id"`
		KMSKeyNativeID string      `json:"kms_key_native_id"`
		Tags           []asset.Tag `json:"tags"`
	} `json:"attached_backup_ebs_volumes"`
	NetworkInterfaces []struct {
		DeviceIndex            int      `json:"device_index"`
		SubnetNativeID         string   `json:"subnet_native_id"`
		SecurityGroupNativeIDs []string `json:"security_group_native_ids"`
	} `json:"network_interfaces"`
}

func decodeEC2(raw json.RawMessage) ([]asset.Discovered, error) {
	var items []ec2BackupItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	out := make([]asset.Discovered, 0, len(items))
	for _, item := range items {
		rec := &asset.EC2Backup{
			InstanceID:       item.InstanceNativeID,
			AZ:               item.AWSAz,
			VPCID:            item.VPCNativeID,
			KeyPairName:      item.KeyPairName,
			IAMProfileName:   item.IAMInstanceProfileName,
			KMSKeyID:         item.KMSKeyNativeID,
			SecurityGroupIDs: item.SecurityGroupNativeIDs,
			Tags:             item.Tags,
		}
		for _, v := range item.AttachedBackupEBSVolumes {
			rec.BlockDevices = append(rec.BlockDevices, asset.BlockDeviceMapping{
				Name:           v.Name,
				VolumeNativeID: v.VolumeNativeID,
				KMSKeyID:       v.KMSKeyNativeID,
				Tags:           v.Tags,
			})
		}
		for _, ni := range item.NetworkInterfaces {
			rec.NetworkInterfaces = append(rec.NetworkInterfaces, asset.NetworkInterface{
				DeviceIndex:      ni.DeviceIndex,
				SubnetNativeID:   ni.SubnetNativeID,
				SecurityGroupIDs: ni.SecurityGroupNativeIDs,
			})
		}
		d := item.fill(asset.TypeEC2, item.InstanceNativeID)
		d.EC2 = rec
		out = append(out, d)
	}
	return out, nil
}

type rdsBackupItem struct {
	backupItemCommon
	ResourceNativeID       string   `json:"resource_native_id"`
	ResourceName           string   `json:"name"`
	SubnetGroupName        string   `json:"subnet_group_name"`
	KMSKeyNativeID         string   `json:"kms_key_native_id"`
	SecurityGroupNativeIDs []string `json:"security_group_native_ids"`
}

func decodeRDS(raw json.RawMessage) ([]asset.Discovered, error) {
	var items []rdsBackupItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	out := make([]asset.Discovered, 0, len(items))
	for _, item := range items {
		name := item.ResourceName
		if name == "" {
			name = item.ResourceNativeID
		}
		d := item.fill(asset.TypeRDS, item.ResourceNativeID)
		d.RDS = &asset.RDSBackup{
			ResourceName:     name,
			SubnetGroupName:  item.SubnetGroupName,
			KMSKeyID:         item.KMSKeyNativeID,
			SecurityGroupIDs: item.SecurityGroupNativeIDs,
			Tags:             item.Tags,
		}
		out = append(out, d)
	}
	return out, nil
}

type dynamoDBBackupItem struct {
	backupItemCommon
	TableNativeID string `json:"table_native_id"`
	TableName     string `json:"table_name"`
	BillingMode   string `json:"billing_mode"`
	TableClass    string `json:"table_class"`
}

func decodeDynamoDB(raw json.RawMessage) ([]asset.Discovered, error) {
	var items []dynamoDBBackupItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	out := make([]asset.Discovered, 0, len(items))
	for _, item := range items {
		d := item.fill(asset.TypeDynamoDB, item.TableNativeID)
		d.DynamoDB = &asset.DynamoDBBackup{
			TableID:     item.TableNativeID,
			TableName:   item.TableName,
			BillingMode: item.BillingMode,
			TableClass:  item.TableClass,
			Tags:        item.Tags,
		}
		out = append(out, d)
	}
	return out, nil
}

type pgBackupItem struct {
	backupItemCommon
	ProtectionGroupID   string `json:"protection_group_id"`
	ProtectionGroupName string `json:"protection_group_name"`
}

func decodePG(raw json.RawMessage) ([]asset.Discovered, error) {
	var items []pgBackupItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	out := make([]asset.Discovered, 0, len(items))
	for _, item := range items {
		d := item.fill(asset.TypeProtectionGroup, item.ProtectionGroupID)
		d.ProtectionGroup = &asset.ProtectionGroupBackup{
			GroupName: item.ProtectionGroupName,
			GroupID:   item.ProtectionGroupID,
		}
		out = append(out, d)
	}
	return out, nil
}
