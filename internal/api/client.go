// Package api implements the REST client for the backup service: backup
// catalog listing, environment lookup, restore dispatch, and task polling.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/clumio-code/bulk-restore/internal/asset"
	resterrors "github.com/clumio-code/bulk-restore/internal/errors"
	"github.com/clumio-code/bulk-restore/internal/logger"
)

const defaultPageLimit = 100

// Backup catalog list endpoints per asset type
var backupPaths = map[asset.Type]string{
	asset.TypeEBS:             "/backups/aws/ebs-volumes",
	asset.TypeEC2:             "/backups/aws/ec2-instances",
	asset.TypeRDS:             "/backups/aws/rds-resources",
	asset.TypeDynamoDB:        "/backups/aws/dynamodb-tables",
	asset.TypeProtectionGroup: "/backups/protection-groups",
}

// Restore-start endpoints per asset type
var restorePaths = map[asset.Type]string{
	asset.TypeEBS:             "/restores/aws/ebs-volumes",
	asset.TypeEC2:             "/restores/aws/ec2-instances",
	asset.TypeRDS:             "/restores/aws/rds-resources",
	asset.TypeDynamoDB:        "/restores/aws/dynamodb-tables",
	asset.TypeProtectionGroup: "/restores/protection-groups",
}

// ClientConfig configures the provider client
type ClientConfig struct {
	Host      string // API host without scheme
	Token     string // Bearer token
	Timeout   time.Duration
	Retry     *RetryConfig
	PageLimit int
}

// Client talks to the backup service REST API
type Client struct {
	http   *http.Client
	scheme string
	host   string
	token  string
	retry  *RetryConfig
	limit  int
	log    logger.Logger
}

// NewClient creates a provider client
func NewClient(cfg ClientConfig, log logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	limit := cfg.PageLimit
	if limit == 0 {
		limit = defaultPageLimit
	}
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Client{
		http:   &http.Client{Timeout: timeout},
		scheme: "https",
		host:   cfg.Host,
		token:  cfg.Token,
		retry:  cfg.Retry,
		limit:  limit,
		log:    log,
	}
}

// listEnvelope is the provider's paged-list response wrapper
type listEnvelope struct {
	Embedded struct {
		Items json.RawMessage `json:"items"`
	} `json:"_embedded"`
	CurrentCount    int `json:"current_count"`
	TotalCount      int `json:"total_count"`
	TotalPagesCount int `json:"total_pages_count"`
}

// ListBackups runs one page of a discovery query. Pages start at 1.
func (c *Client) ListBackups(ctx context.Context, q Query, page int) (BackupPage, error) {
	path, ok := backupPaths[q.Type]
	if !ok {
		return BackupPage{}, resterrors.NewInternalError(resterrors.ErrCodeLogicError,
			fmt.Sprintf("no backup endpoint for asset type %s", q.Type))
	}

	limit := q.Limit
	if limit == 0 {
		limit = c.limit
	}
	params := url.Values{}
	if q.Filter != "" {
		params.Set("filter", q.Filter)
	}
	if q.Sort != "" {
		params.Set("sort", q.Sort)
	}
	params.Set("start", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(limit))

	var env listEnvelope
	if err := c.get(ctx, path, params, &env); err != nil {
		return BackupPage{}, err
	}

	items, err := decodeBackupItems(q.Type, env.Embedded.Items)
	if err != nil {
		return BackupPage{}, resterrors.NewProviderError("malformed backup listing response", err)
	}

	return BackupPage{
		Items:      items,
		TotalPages: env.TotalPagesCount,
		TotalCount: env.TotalCount,
	}, nil
}

// ListEnvironments returns the connected environments for an account,
// optionally narrowed to one region
func (c *Client) ListEnvironments(ctx context.Context, account, region string) ([]Environment, error) {
	filter := map[string]any{
		"account_native_id": map[string]any{"$eq": account},
	}
	if region != "" {
		filter["aws_region"] = map[string]any{"$eq": region}
	}
	raw, err := json.Marshal(filter)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("filter", string(raw))
	params.Set("limit", strconv.Itoa(c.limit))

	var env listEnvelope
	if err := c.get(ctx, "/datasources/aws/environments", params, &env); err != nil {
		return nil, err
	}
	if len(env.Embedded.Items) == 0 || env.CurrentCount == 0 {
		return nil, nil
	}
	var out []Environment
	if err := json.Unmarshal(env.Embedded.Items, &out); err != nil {
		return nil, resterrors.NewProviderError("malformed environment listing response", err)
	}
	return out, nil
}

// ResolveEnvironment returns the environment id for one (account, region)
// pair, or ErrCodeNoEnvironment when the pair is not connected
func (c *Client) ResolveEnvironment(ctx context.Context, account, region string) (string, error) {
	envs, err := c.ListEnvironments(ctx, account, region)
	if err != nil {
		return "", err
	}
	if len(envs) == 0 {
		return "", &resterrors.RestoreError{
			Code:     resterrors.ErrCodeNoEnvironment,
			Category: resterrors.CategoryDiscovery,
			Message:  fmt.Sprintf("no authorized environment for account %s region %s", account, region),
		}
	}
	return envs[0].ID, nil
}

// protection-group catalog item
type pgItem struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	BucketCount int64    `json:"bucket_count"`
	BucketNames []string `json:"bucket_names"`
}

// FindProtectionGroup resolves a protection group by name
func (c *Client) FindProtectionGroup(ctx context.Context, name string) (id string, bucketNames []string, err error) {
	filter := fmt.Sprintf(`{"name": {"$eq": %q}}`, name)
	params := url.Values{}
	params.Set("filter", filter)

	var env listEnvelope
	if err := c.get(ctx, "/datasources/protection-groups", params, &env); err != nil {
		return "", nil, err
	}
	var items []pgItem
	if len(env.Embedded.Items) > 0 {
		if err := json.Unmarshal(env.Embedded.Items, &items); err != nil {
			return "", nil, resterrors.NewProviderError("malformed protection group response", err)
		}
	}
	if len(items) == 0 {
		return "", nil, nil
	}
	return items[0].ID, items[0].BucketNames, nil
}

type pgAssetItem struct {
	ID         string `json:"id"`
	BucketName string `json:"bucket_name"`
}

// ListProtectionGroupAssets returns the S3 asset ids of a protection group,
// optionally narrowed to a bucket-name allowlist
func (c *Client) ListProtectionGroupAssets(ctx context.Context, groupID string, bucketNames []string) ([]string, error) {
	filter := fmt.Sprintf(`{"protection_group_id": {"$eq": %q}}`, groupID)
	params := url.Values{}
	params.Set("filter", filter)
	params.Set("limit", strconv.Itoa(c.limit))

	var env listEnvelope
	if err := c.get(ctx, "/datasources/protection-groups/s3-assets", params, &env); err != nil {
		return nil, err
	}
	var items []pgAssetItem
	if len(env.Embedded.Items) > 0 {
		if err := json.Unmarshal(env.Embedded.Items, &items); err != nil {
			return nil, resterrors.NewProviderError("malformed protection group asset response", err)
		}
	}

	allow := map[string]bool{}
	for _, n := range bucketNames {
		allow[n] = true
	}
	var ids []string
	for _, item := range items {
		if len(allow) > 0 && !allow[item.BucketName] {
			continue
		}
		ids = append(ids, item.ID)
	}
	return ids, nil
}

type bucketItem struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	EnvironmentID string `json:"environment_id"`
}

// FindBucket resolves a target bucket within one (account, region) pair,
// returning the bucket id and its environment id
func (c *Client) FindBucket(ctx context.Context, account, region, name string) (bucketID, environmentID string, err error) {
	filter := map[string]any{
		"account_native_id": map[string]any{"$eq": account},
		"aws_region":        map[string]any{"$eq": region},
		"name":              map[string]any{"$in": []string{name}},
	}
	raw, err := json.Marshal(filter)
	if err != nil {
		return "", "", err
	}
	params := url.Values{}
	params.Set("filter", string(raw))

	var env listEnvelope
	if err := c.get(ctx, "/datasources/aws/s3-buckets", params, &env); err != nil {
		return "", "", err
	}
	var items []bucketItem
	if len(env.Embedded.Items) > 0 {
		if err := json.Unmarshal(env.Embedded.Items, &items); err != nil {
			return "", "", resterrors.NewProviderError("malformed bucket listing response", err)
		}
	}
	if len(items) == 0 {
		return "", "", nil
	}
	return items[0].ID, items[0].EnvironmentID, nil
}

// restoreResponse is the provider's restore-start response
type restoreResponse struct {
	TaskID string `json:"task_id"`
	ID     string `json:"id"`
}

// StartRestore issues one restore-start call and returns the provider task id
func (c *Client) StartRestore(ctx context.Context, req RestoreRequest) (string, error) {
	path, ok := restorePaths[req.Type]
	if !ok {
		return "", resterrors.NewInternalError(resterrors.ErrCodeLogicError,
			fmt.Sprintf("no restore endpoint for asset type %s", req.Type))
	}

	body, err := restoreBody(req)
	if err != nil {
		return "", err
	}

	var resp restoreResponse
	if err := c.do(ctx, http.MethodPost, path, nil, body, &resp); err != nil {
		return "", err
	}
	if resp.TaskID == "" {
		return "", resterrors.NewProviderError("restore accepted without a task id", nil)
	}
	return resp.TaskID, nil
}

// ReadTask fetches the current status of a restore task
func (c *Client) ReadTask(ctx context.Context, taskID string) (Task, error) {
	var task Task
	if err := c.get(ctx, "/tasks/"+url.PathEscape(taskID), nil, &task); err != nil {
		return Task{}, err
	}
	return task, nil
}

// restoreBody shapes the wire request for one restore start
func restoreBody(req RestoreRequest) (map[string]any, error) {
	source := map[string]any{"backup_id": req.BackupID}
	var target any
	switch {
	case req.EBS != nil:
		target = req.EBS
	case req.EC2 != nil:
		target = map[string]any{"instance_restore_target": req.EC2}
	case req.RDS != nil:
		target = req.RDS
	case req.DynamoDB != nil:
		target = req.DynamoDB
	case req.ProtectionGroup != nil:
		pg := req.ProtectionGroup
		source["protection_group_s3_asset_ids"] = pg.AssetIDs
		if pg.ObjectFilters != nil {
			source["object_filters"] = pg.ObjectFilters
		}
		target = map[string]any{
			"environment_id":                 pg.EnvironmentID,
			"bucket_id":                      pg.BucketID,
			"prefix":                         pg.Prefix,
			"overwrite":                      pg.Overwrite,
			"restore_original_storage_class": pg.RestoreOriginalStorageClass,
		}
	default:
		return nil, resterrors.NewInternalError(resterrors.ErrCodeInvalidState,
			"restore request carries no target block")
	}
	return map[string]any{"source": source, "target": target}, nil
}

// get runs a GET with retry on transient failures
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	return RetryOperationWithNotify(ctx, c.retry, func() error {
		return c.do(ctx, http.MethodGet, path, params, nil, out)
	}, func(err error, next time.Duration) {
		c.log.Warn("provider call failed, retrying", "path", path, "next", next.String(), "error", err.Error())
	})
}

// do runs one HTTP round trip. POSTs are not retried here: restore starts
// are not idempotent.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body any, out any) error {
	u := url.URL{Scheme: c.scheme, Host: c.host, Path: path}
	if params != nil {
		u.RawQuery = params.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/api.clumio.v1+json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return resterrors.NewDiscoveryError("provider request failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return resterrors.NewDiscoveryError("reading provider response failed", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, payload)
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return resterrors.NewProviderError("malformed provider response", err)
		}
	}
	return nil
}

// statusError maps an HTTP error status to the error taxonomy
func statusError(status int, payload []byte) error {
	detail := string(payload)
	if len(detail) > 300 {
		detail = detail[:300]
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return resterrors.NewAuthError(resterrors.ErrCodeUnauthorized,
			fmt.Sprintf("provider rejected credentials (HTTP %d)", status), nil).WithDetails(detail)
	case status == http.StatusTooManyRequests:
		return &resterrors.RestoreError{
			Code:     resterrors.ErrCodeRateLimited,
			Category: resterrors.CategoryProvider,
			Message:  "provider rate limit exceeded",
			Details:  detail,
		}
	case status >= 500:
		return &resterrors.RestoreError{
			Code:     resterrors.ErrCodeUnavailable,
			Category: resterrors.CategoryProvider,
			Message:  fmt.Sprintf("provider unavailable (HTTP %d)", status),
			Details:  detail,
		}
	default:
		return resterrors.NewProviderError(
			fmt.Sprintf("provider rejected request (HTTP %d)", status), nil).WithDetails(detail)
	}
}

// decodeBackupItems converts one page of provider backup items into
// discovered-backup records
func decodeBackupItems(t asset.Type, raw json.RawMessage) ([]asset.Discovered, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	switch t {
	case asset.TypeEBS:
		return decodeEBS(raw)
	case asset.TypeEC2:
		return decodeEC2(raw)
	case asset.TypeRDS:
		return decodeRDS(raw)
	case asset.TypeDynamoDB:
		return decodeDynamoDB(raw)
	case asset.TypeProtectionGroup:
		return decodePG(raw)
	}
	return nil, fmt.Errorf("unknown asset type %s", t)
}
