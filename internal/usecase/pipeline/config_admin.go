package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"recordbridge/internal/bootstrap/logging"
	domain "recordbridge/internal/domain/pipeline"
	"recordbridge/internal/errs"
	"recordbridge/internal/ports"
)

// CreateFieldConfig stores a new ruleset version for (organization, record
// type) and makes it the active one. The previous active version is
// deactivated in the same transaction, so exactly one version stays active.
func (s *Service) CreateFieldConfig(ctx context.Context, input CreateFieldConfigInput) (FieldConfigView, error) {
	if ctx == nil {
		return FieldConfigView{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return FieldConfigView{}, errs.Wrap(err, "check context")
	}
	if s.configs == nil || s.uow == nil {
		return FieldConfigView{}, errors.New("pipeline service is not fully wired")
	}
	if input.OrganizationID == 0 {
		return FieldConfigView{}, errors.New("organization id is required")
	}
	recordType, err := domain.NormalizeRecordType(input.RecordType)
	if err != nil {
		return FieldConfigView{}, err
	}
	if err := domain.ValidateRules(input.Rules, input.Settings); err != nil {
		return FieldConfigView{}, fmt.Errorf("%w: %v", domain.ErrInvalidRuleSet, err)
	}

	rulesJSON, settingsJSON, err := encodeConfig(domain.FieldConfiguration{
		Rules:    input.Rules,
		Settings: input.Settings,
	})
	if err != nil {
		return FieldConfigView{}, err
	}

	var created ports.FieldConfigurationRow
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		latest, err := s.configs.LatestConfigVersion(txCtx, input.OrganizationID, recordType)
		if err != nil {
			return err
		}

		now := nowUTCString()
		if err := s.configs.DeactivateActiveConfig(txCtx, input.OrganizationID, recordType, now); err != nil {
			return err
		}
		created, err = s.configs.CreateConfig(txCtx, ports.FieldConfigurationRow{
			OrganizationID: input.OrganizationID,
			RecordType:     recordType,
			Version:        latest + 1,
			Active:         true,
			RulesJSON:      rulesJSON,
			SettingsJSON:   settingsJSON,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		return err
	}); err != nil {
		return FieldConfigView{}, err
	}

	logging.Info(logging.WithAttrs(ctx, slog.String("component", "pipeline.config")),
		"field configuration activated",
		slog.Uint64("organization_id", input.OrganizationID),
		slog.String("record_type", recordType),
		slog.Int("version", created.Version),
	)
	return configView(created)
}

// GetActiveFieldConfig returns the active ruleset for (organization, record type).
func (s *Service) GetActiveFieldConfig(ctx context.Context, organizationID uint64, recordType string) (FieldConfigView, error) {
	if ctx == nil {
		return FieldConfigView{}, errors.New("context is required")
	}
	if s.configs == nil {
		return FieldConfigView{}, errors.New("config repository is required")
	}
	recordType, err := domain.NormalizeRecordType(recordType)
	if err != nil {
		return FieldConfigView{}, err
	}

	row, err := s.configs.GetActiveConfig(ctx, organizationID, recordType)
	if err != nil {
		if errors.Is(err, ports.ErrConfigNotFound) {
			return FieldConfigView{}, fmt.Errorf("%w: organization %d record type %s",
				domain.ErrConfigNotFound, organizationID, recordType)
		}
		return FieldConfigView{}, err
	}
	return configView(row)
}

// ListFieldConfigVersions returns every stored version, newest first.
func (s *Service) ListFieldConfigVersions(ctx context.Context, organizationID uint64, recordType string) ([]FieldConfigView, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if s.configs == nil {
		return nil, errors.New("config repository is required")
	}
	recordType, err := domain.NormalizeRecordType(recordType)
	if err != nil {
		return nil, err
	}

	rows, err := s.configs.ListConfigVersions(ctx, organizationID, recordType)
	if err != nil {
		return nil, err
	}
	views := make([]FieldConfigView, 0, len(rows))
	for _, row := range rows {
		view, err := configView(row)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

type configProfileRule struct {
	OCRLabel          string `toml:"ocr_label"`
	TargetField       string `toml:"target_field"`
	Required          bool   `toml:"required"`
	ValidationPattern string `toml:"validation_pattern"`
	FormatTemplate    string `toml:"format_template"`
}

type configProfileSettings struct {
	AutoInsertThreshold        float64  `toml:"auto_insert_threshold"`
	ConfidenceWarningThreshold float64  `toml:"confidence_warning_threshold"`
	RequireManualReviewFields  []string `toml:"require_manual_review_fields"`
	FuzzyMaxDistance           int      `toml:"fuzzy_max_distance"`
}

type configProfile struct {
	OrganizationID uint64                `toml:"organization_id"`
	RecordType     string                `toml:"record_type"`
	Settings       configProfileSettings `toml:"settings"`
	Rules          []configProfileRule   `toml:"rules"`
}

// ImportConfigProfile parses a TOML ruleset profile and activates it as a
// new configuration version.
func (s *Service) ImportConfigProfile(ctx context.Context, profileTOML []byte) (FieldConfigView, error) {
	if ctx == nil {
		return FieldConfigView{}, errors.New("context is required")
	}
	if len(profileTOML) == 0 {
		return FieldConfigView{}, errors.New("profile is empty")
	}

	var profile configProfile
	if err := toml.Unmarshal(profileTOML, &profile); err != nil {
		return FieldConfigView{}, errs.Wrap(err, "parse configuration profile")
	}
	if strings.TrimSpace(profile.RecordType) == "" {
		return FieldConfigView{}, errors.New("profile is missing record_type")
	}

	rules := make([]domain.FieldRule, 0, len(profile.Rules))
	for _, rule := range profile.Rules {
		rules = append(rules, domain.FieldRule{
			OCRLabel:          rule.OCRLabel,
			TargetField:       rule.TargetField,
			Required:          rule.Required,
			ValidationPattern: rule.ValidationPattern,
			FormatTemplate:    rule.FormatTemplate,
		})
	}

	return s.CreateFieldConfig(ctx, CreateFieldConfigInput{
		OrganizationID: profile.OrganizationID,
		RecordType:     profile.RecordType,
		Rules:          rules,
		Settings: domain.ConfigSettings{
			AutoInsertThreshold:        profile.Settings.AutoInsertThreshold,
			ConfidenceWarningThreshold: profile.Settings.ConfidenceWarningThreshold,
			RequireManualReviewFields:  profile.Settings.RequireManualReviewFields,
			FuzzyMaxDistance:           profile.Settings.FuzzyMaxDistance,
		},
	})
}
