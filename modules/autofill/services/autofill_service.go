package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/fieldmeta"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/ports"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/types"
	"github.com/jacksonlee411/contact-autofill/pkg/httperr"
	"golang.org/x/sync/errgroup"
)

const (
	errInvalidArgument        = "AUTOFILL_INVALID_ARGUMENT"
	errConfigurationNotFound  = "CONFIGURATION_NOT_FOUND"
	errFieldConfigNotFound    = "FIELD_CONFIG_NOT_FOUND"
	errRecordNotFound         = "RECORD_NOT_FOUND"
	errTargetKeyConflict      = "TARGET_KEY_CONFLICT"
	errTargetKeyRequired      = "TARGET_KEY_REQUIRED"
	errTargetKeyNotWritable   = "TARGET_KEY_NOT_WRITABLE"
	errConfigFieldNameMissing = "CONFIG_FIELD_NAME_REQUIRED"
	errSnapshotRequired       = "FIELD_SNAPSHOT_REQUIRED"
	errRestoreStandardField   = "FIELD_RESTORE_STANDARD_TARGET"
	errExtractionFailed       = "EXTRACTION_FAILED"
	errExtractionStatus       = "EXTRACTION_STATUS_INVALID"
	errRecordUpdateFailed     = "RECORD_UPDATE_FAILED"
	errRemoteFieldsFailed     = "REMOTE_FIELDS_FAILED"
	errRemoteFieldCreate      = "REMOTE_FIELD_CREATE_FAILED"
	errRecordFetchFailed      = "RECORD_FETCH_FAILED"
)

const (
	ExtractionStatusOK     = "ok"
	ExtractionStatusFailed = "failed"
	ExtractionStatusEmpty  = "empty"

	OutcomeWritten        = "WRITTEN"
	OutcomeDryRun         = "DRY_RUN"
	OutcomeNothingToWrite = "NOTHING_TO_WRITE"
	OutcomeNothingFound   = "NOTHING_EXTRACTED"
)

var (
	now     = func() time.Time { return time.Now().UTC() }
	newUUID = func() (string, error) {
		id, err := uuid.NewV7()
		if err != nil {
			return "", err
		}
		return id.String(), nil
	}
)

type AutofillService interface {
	Merge(ctx context.Context, req MergeRequest) (MergeOutcome, error)
	SyncFields(ctx context.Context, configurationID string) (types.SyncResult, error)
	RestoreField(ctx context.Context, configurationID string, fieldID string) (types.ExtractionFieldConfig, error)

	ListConfigurations(ctx context.Context) ([]types.Configuration, error)
	GetConfiguration(ctx context.Context, configurationID string) (types.Configuration, error)
	CreateConfiguration(ctx context.Context, in ConfigurationInput) (types.Configuration, error)
	UpdateConfiguration(ctx context.Context, configurationID string, in ConfigurationInput) (types.Configuration, error)
	DeleteConfiguration(ctx context.Context, configurationID string) error

	ListFieldConfigs(ctx context.Context, configurationID string) ([]types.ExtractionFieldConfig, error)
	GetFieldConfig(ctx context.Context, configurationID string, fieldID string) (types.ExtractionFieldConfig, error)
	CreateFieldConfig(ctx context.Context, configurationID string, in FieldConfigInput) (types.ExtractionFieldConfig, error)
	UpdateFieldConfig(ctx context.Context, configurationID string, fieldID string, in FieldConfigInput) (types.ExtractionFieldConfig, error)
	DeleteFieldConfig(ctx context.Context, configurationID string, fieldID string) error
}

// MergeRequest is the extractor envelope. ExtractedData is the raw extractor
// output; Status distinguishes a failed extraction from an empty one.
type MergeRequest struct {
	ConfigurationID string
	RecordID        string
	Status          string
	Message         string
	ExtractedData   json.RawMessage
	DryRun          bool
}

type MergeOutcome struct {
	Outcome string               `json:"outcome"`
	Result  types.MergeResult    `json:"result"`
	Payload *types.RecordPayload `json:"payload,omitempty"`
}

type ConfigurationInput struct {
	Name       string
	LocationID string
}

type FieldConfigInput struct {
	FieldName              string
	TargetKey              string
	FieldKey               string
	FieldType              string
	OverwritePolicy        string
	ConditionExpr          string
	Description            string
	SortOrder              int
	OriginalRemoteSnapshot *types.RemoteFieldSnapshot
}

type autofillService struct {
	configs ports.ConfigStore
	records ports.RecordStore
	schema  ports.FieldSchemaStore

	engine     MergeEngine
	builder    PayloadBuilder
	sync       FieldSync
	recreation FieldRecreation
	conditions *ConditionEvaluator
	logger     *slog.Logger
}

func NewAutofillService(configs ports.ConfigStore, records ports.RecordStore, schema ports.FieldSchemaStore, logger *slog.Logger) AutofillService {
	if logger == nil {
		logger = slog.Default()
	}
	conditions := NewConditionEvaluator()
	return &autofillService{
		configs:    configs,
		records:    records,
		schema:     schema,
		engine:     NewMergeEngine(conditions),
		builder:    NewPayloadBuilder(logger),
		recreation: NewFieldRecreation(logger),
		conditions: conditions,
		logger:     logger,
	}
}

func (s *autofillService) Merge(ctx context.Context, req MergeRequest) (MergeOutcome, error) {
	configurationID := strings.TrimSpace(req.ConfigurationID)
	recordID := strings.TrimSpace(req.RecordID)
	if configurationID == "" || recordID == "" {
		return MergeOutcome{}, httperr.NewValidation(errInvalidArgument, "configuration_id and record_id are required")
	}

	switch strings.ToLower(strings.TrimSpace(req.Status)) {
	case "", ExtractionStatusOK:
	case ExtractionStatusFailed:
		msg := strings.TrimSpace(req.Message)
		if msg == "" {
			msg = "extraction failed"
		}
		return MergeOutcome{}, httperr.NewUpstream(errExtractionFailed, 0, errors.New(msg))
	case ExtractionStatusEmpty:
		if _, err := s.GetConfiguration(ctx, configurationID); err != nil {
			return MergeOutcome{}, err
		}
		return MergeOutcome{Outcome: OutcomeNothingFound, Result: emptyMergeResult()}, nil
	default:
		return MergeOutcome{}, httperr.NewValidation(errExtractionStatus, "status must be ok, failed or empty")
	}

	extracted, err := ParseExtractedData(req.ExtractedData)
	if err != nil {
		return MergeOutcome{}, err
	}

	var (
		configs []types.ExtractionFieldConfig
		record  types.RecordAttributeSet
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if _, err := s.configs.GetConfiguration(gctx, configurationID); err != nil {
			return mapStoreError(err)
		}
		list, err := s.configs.ListFieldConfigs(gctx, configurationID)
		if err != nil {
			return mapStoreError(err)
		}
		configs = list
		return nil
	})
	g.Go(func() error {
		rec, err := s.records.GetRecord(gctx, recordID)
		if err != nil {
			return mapUpstreamError(err, errRecordFetchFailed)
		}
		record = rec
		return nil
	})
	if err := g.Wait(); err != nil {
		return MergeOutcome{}, err
	}

	result := s.engine.Merge(record, extracted, configs)
	payload, err := s.builder.Sanitize(result.UpdatePayload)
	if errors.Is(err, ErrNothingToWrite) {
		return MergeOutcome{Outcome: OutcomeNothingToWrite, Result: result}, nil
	}
	if err != nil {
		return MergeOutcome{}, err
	}
	if req.DryRun {
		return MergeOutcome{Outcome: OutcomeDryRun, Result: result, Payload: &payload}, nil
	}

	if err := s.records.UpdateRecord(ctx, recordID, payload); err != nil {
		return MergeOutcome{}, mapUpstreamError(err, errRecordUpdateFailed)
	}
	s.logger.Info("autofill: record updated",
		"configuration_id", configurationID,
		"record_id", recordID,
		"updated_keys", result.UpdatedKeys,
		"skipped_keys", len(result.SkippedKeys),
	)
	return MergeOutcome{Outcome: OutcomeWritten, Result: result, Payload: &payload}, nil
}

func emptyMergeResult() types.MergeResult {
	return types.MergeResult{
		UpdatePayload: types.RecordPayload{Attributes: map[string]any{}},
		UpdatedKeys:   []string{},
		SkippedKeys:   []string{},
		SkipReasons:   map[string]string{},
	}
}

func (s *autofillService) SyncFields(ctx context.Context, configurationID string) (types.SyncResult, error) {
	owner, err := s.GetConfiguration(ctx, configurationID)
	if err != nil {
		return types.SyncResult{}, err
	}

	var (
		configs []types.ExtractionFieldConfig
		remote  []types.RemoteFieldSnapshot
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := s.configs.ListFieldConfigs(gctx, owner.ID)
		if err != nil {
			return mapStoreError(err)
		}
		configs = list
		return nil
	})
	g.Go(func() error {
		fields, err := s.schema.ListCustomFields(gctx, owner.LocationID)
		if err != nil {
			return mapUpstreamError(err, errRemoteFieldsFailed)
		}
		remote = fields
		return nil
	})
	if err := g.Wait(); err != nil {
		return types.SyncResult{}, err
	}

	result := s.sync.Sync(configs, remote)
	for i, cfg := range result.Updated {
		cfg.UpdatedAt = now()
		saved, err := s.configs.UpdateFieldConfig(ctx, cfg)
		if err != nil {
			return types.SyncResult{}, mapStoreError(err)
		}
		result.Updated[i] = saved
	}
	if len(result.Updated) > 0 || len(result.Missing) > 0 {
		s.logger.Info("autofill: fields synced",
			"configuration_id", owner.ID,
			"updated", len(result.Updated),
			"renamed", len(result.Renamed),
			"missing", result.Missing,
		)
	}
	return result, nil
}

func (s *autofillService) RestoreField(ctx context.Context, configurationID string, fieldID string) (types.ExtractionFieldConfig, error) {
	owner, err := s.GetConfiguration(ctx, configurationID)
	if err != nil {
		return types.ExtractionFieldConfig{}, err
	}
	cfg, err := s.GetFieldConfig(ctx, owner.ID, fieldID)
	if err != nil {
		return types.ExtractionFieldConfig{}, err
	}
	if fieldmeta.TargetKindOf(cfg) != types.TargetKindCustom {
		return types.ExtractionFieldConfig{}, httperr.NewValidation(errRestoreStandardField, "only custom-field targets can be restored")
	}
	if cfg.OriginalRemoteSnapshot == nil {
		return types.ExtractionFieldConfig{}, httperr.NewValidation(errSnapshotRequired, "field has no stored snapshot to restore from")
	}

	payload, err := s.recreation.Recreate(*cfg.OriginalRemoteSnapshot)
	if err != nil {
		return types.ExtractionFieldConfig{}, err
	}
	live, err := s.schema.CreateCustomField(ctx, owner.LocationID, payload)
	if err != nil {
		return types.ExtractionFieldConfig{}, mapUpstreamError(err, errRemoteFieldCreate)
	}
	if strings.TrimSpace(live.ID) == "" {
		return types.ExtractionFieldConfig{}, httperr.NewUpstream(errRemoteFieldCreate, 0, errors.New("created field has no id"))
	}

	previous := cfg.TargetKey
	next := cfg.Clone()
	next.TargetKey = live.ID
	next.TargetKind = types.TargetKindCustom
	if live.Name != "" {
		next.FieldName = live.Name
	}
	if live.FieldKey != "" && fieldKeyFollowsSnapshot(cfg) {
		next.FieldKey = live.FieldKey
	}
	snap := live.Clone()
	next.OriginalRemoteSnapshot = &snap
	next.UpdatedAt = now()

	saved, err := s.configs.UpdateFieldConfig(ctx, next)
	if err != nil {
		// The remote field exists now; report its id so it can be reconciled.
		s.logger.Error("autofill: restored field not saved",
			"configuration_id", owner.ID,
			"field_id", cfg.ID,
			"remote_field_id", live.ID,
			"error", err,
		)
		return types.ExtractionFieldConfig{}, httperr.WithDetail(mapStoreError(err), "remote_field_id", live.ID)
	}
	s.logger.Info("autofill: field restored",
		"configuration_id", owner.ID,
		"field_id", saved.ID,
		"previous_target_key", previous,
		"target_key", saved.TargetKey,
	)
	return saved, nil
}

func (s *autofillService) ListConfigurations(ctx context.Context) ([]types.Configuration, error) {
	list, err := s.configs.ListConfigurations(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return list, nil
}

func (s *autofillService) GetConfiguration(ctx context.Context, configurationID string) (types.Configuration, error) {
	configurationID = strings.TrimSpace(configurationID)
	if configurationID == "" {
		return types.Configuration{}, httperr.NewValidation(errInvalidArgument, "configuration_id is required")
	}
	out, err := s.configs.GetConfiguration(ctx, configurationID)
	if err != nil {
		return types.Configuration{}, mapStoreError(err)
	}
	return out, nil
}

func (s *autofillService) CreateConfiguration(ctx context.Context, in ConfigurationInput) (types.Configuration, error) {
	cfg, err := normalizeConfigurationInput(in)
	if err != nil {
		return types.Configuration{}, err
	}
	id, err := newUUID()
	if err != nil {
		return types.Configuration{}, err
	}
	ts := now()
	cfg.ID = id
	cfg.CreatedAt = ts
	cfg.UpdatedAt = ts
	out, err := s.configs.CreateConfiguration(ctx, cfg)
	if err != nil {
		return types.Configuration{}, mapStoreError(err)
	}
	return out, nil
}

func (s *autofillService) UpdateConfiguration(ctx context.Context, configurationID string, in ConfigurationInput) (types.Configuration, error) {
	current, err := s.GetConfiguration(ctx, configurationID)
	if err != nil {
		return types.Configuration{}, err
	}
	cfg, err := normalizeConfigurationInput(in)
	if err != nil {
		return types.Configuration{}, err
	}
	current.Name = cfg.Name
	current.LocationID = cfg.LocationID
	current.UpdatedAt = now()
	out, err := s.configs.UpdateConfiguration(ctx, current)
	if err != nil {
		return types.Configuration{}, mapStoreError(err)
	}
	return out, nil
}

func (s *autofillService) DeleteConfiguration(ctx context.Context, configurationID string) error {
	configurationID = strings.TrimSpace(configurationID)
	if configurationID == "" {
		return httperr.NewValidation(errInvalidArgument, "configuration_id is required")
	}
	return mapStoreError(s.configs.DeleteConfiguration(ctx, configurationID))
}

func normalizeConfigurationInput(in ConfigurationInput) (types.Configuration, error) {
	name := strings.TrimSpace(in.Name)
	location := strings.TrimSpace(in.LocationID)
	if name == "" || location == "" {
		return types.Configuration{}, httperr.NewValidation(errInvalidArgument, "name and location_id are required")
	}
	return types.Configuration{Name: name, LocationID: location}, nil
}

func (s *autofillService) ListFieldConfigs(ctx context.Context, configurationID string) ([]types.ExtractionFieldConfig, error) {
	owner, err := s.GetConfiguration(ctx, configurationID)
	if err != nil {
		return nil, err
	}
	list, err := s.configs.ListFieldConfigs(ctx, owner.ID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return list, nil
}

func (s *autofillService) GetFieldConfig(ctx context.Context, configurationID string, fieldID string) (types.ExtractionFieldConfig, error) {
	configurationID = strings.TrimSpace(configurationID)
	fieldID = strings.TrimSpace(fieldID)
	if configurationID == "" || fieldID == "" {
		return types.ExtractionFieldConfig{}, httperr.NewValidation(errInvalidArgument, "configuration_id and field_id are required")
	}
	out, err := s.configs.GetFieldConfig(ctx, configurationID, fieldID)
	if err != nil {
		return types.ExtractionFieldConfig{}, mapStoreError(err)
	}
	return out, nil
}

func (s *autofillService) CreateFieldConfig(ctx context.Context, configurationID string, in FieldConfigInput) (types.ExtractionFieldConfig, error) {
	owner, err := s.GetConfiguration(ctx, configurationID)
	if err != nil {
		return types.ExtractionFieldConfig{}, err
	}
	cfg, err := s.normalizeFieldConfigInput(in)
	if err != nil {
		return types.ExtractionFieldConfig{}, err
	}
	id, err := newUUID()
	if err != nil {
		return types.ExtractionFieldConfig{}, err
	}
	ts := now()
	cfg.ID = id
	cfg.ConfigurationID = owner.ID
	cfg.CreatedAt = ts
	cfg.UpdatedAt = ts
	out, err := s.configs.CreateFieldConfig(ctx, cfg)
	if err != nil {
		return types.ExtractionFieldConfig{}, mapStoreError(err)
	}
	return out, nil
}

func (s *autofillService) UpdateFieldConfig(ctx context.Context, configurationID string, fieldID string, in FieldConfigInput) (types.ExtractionFieldConfig, error) {
	current, err := s.GetFieldConfig(ctx, configurationID, fieldID)
	if err != nil {
		return types.ExtractionFieldConfig{}, err
	}
	cfg, err := s.normalizeFieldConfigInput(in)
	if err != nil {
		return types.ExtractionFieldConfig{}, err
	}
	cfg.ID = current.ID
	cfg.ConfigurationID = current.ConfigurationID
	cfg.CreatedAt = current.CreatedAt
	cfg.UpdatedAt = now()
	if cfg.OriginalRemoteSnapshot == nil {
		cfg.OriginalRemoteSnapshot = current.OriginalRemoteSnapshot
	}
	out, err := s.configs.UpdateFieldConfig(ctx, cfg)
	if err != nil {
		return types.ExtractionFieldConfig{}, mapStoreError(err)
	}
	return out, nil
}

func (s *autofillService) DeleteFieldConfig(ctx context.Context, configurationID string, fieldID string) error {
	configurationID = strings.TrimSpace(configurationID)
	fieldID = strings.TrimSpace(fieldID)
	if configurationID == "" || fieldID == "" {
		return httperr.NewValidation(errInvalidArgument, "configuration_id and field_id are required")
	}
	return mapStoreError(s.configs.DeleteFieldConfig(ctx, configurationID, fieldID))
}

// normalizeFieldConfigInput classifies the target once and stores the result
// on the config; the merge engine reads it from there.
func (s *autofillService) normalizeFieldConfigInput(in FieldConfigInput) (types.ExtractionFieldConfig, error) {
	name := strings.TrimSpace(in.FieldName)
	if name == "" {
		return types.ExtractionFieldConfig{}, httperr.NewValidation(errConfigFieldNameMissing, "field_name is required")
	}
	targetKey := strings.TrimSpace(in.TargetKey)
	if targetKey == "" {
		return types.ExtractionFieldConfig{}, httperr.NewValidation(errTargetKeyRequired, "target_key is required")
	}
	kind := fieldmeta.ClassifyTargetKey(targetKey)
	if kind == types.TargetKindStandard && !fieldmeta.IsWritableAttribute(fieldmeta.NativeAttributeName(targetKey)) {
		return types.ExtractionFieldConfig{}, httperr.NewValidationDetails(errTargetKeyNotWritable, "target_key is not a writable standard attribute", map[string]any{
			"target_key": targetKey,
			"writable":   fieldmeta.WritableAttributes(),
		})
	}
	expr := strings.TrimSpace(in.ConditionExpr)
	if err := s.conditions.Validate(expr); err != nil {
		return types.ExtractionFieldConfig{}, err
	}

	fieldType := strings.ToUpper(strings.TrimSpace(in.FieldType))
	if fieldType == "" && in.OriginalRemoteSnapshot != nil {
		fieldType = strings.ToUpper(strings.TrimSpace(in.OriginalRemoteSnapshot.DataType))
	}
	if fieldType == "" {
		fieldType = "TEXT"
	}

	out := types.ExtractionFieldConfig{
		FieldName:       name,
		TargetKey:       targetKey,
		TargetKind:      kind,
		FieldKey:        strings.TrimSpace(in.FieldKey),
		FieldType:       fieldType,
		OverwritePolicy: types.NormalizeOverwritePolicy(in.OverwritePolicy),
		ConditionExpr:   expr,
		Description:     strings.TrimSpace(in.Description),
		SortOrder:       in.SortOrder,
	}
	if in.OriginalRemoteSnapshot != nil {
		snap := in.OriginalRemoteSnapshot.Clone()
		out.OriginalRemoteSnapshot = &snap
	}
	return out, nil
}

func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ports.ErrConfigurationNotFound):
		return httperr.NewNotFound(errConfigurationNotFound, "configuration not found")
	case errors.Is(err, ports.ErrFieldConfigNotFound):
		return httperr.NewNotFound(errFieldConfigNotFound, "field config not found")
	case errors.Is(err, ports.ErrTargetKeyConflict):
		return httperr.NewConflict(errTargetKeyConflict, "target_key is already used by another field in this configuration")
	default:
		return err
	}
}

// mapUpstreamError keeps typed errors from the CRM adapter and wraps anything
// else as an upstream failure under code.
func mapUpstreamError(err error, code string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ports.ErrRecordNotFound):
		return httperr.NewNotFound(errRecordNotFound, "record not found")
	}
	if _, ok := httperr.KindOf(err); ok {
		return err
	}
	return httperr.NewUpstream(code, 0, err)
}
