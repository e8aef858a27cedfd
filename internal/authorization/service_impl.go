package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	obslogger "github.com/smallbiznis/condopay/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectCondominium        = "condominium"
	ObjectContributionReport = "contribution_report"
	ObjectResident           = "resident"
	ObjectResidentOverview   = "resident_overview"
	ObjectPayment            = "payment"
)

const (
	ActionCondominiumCreate = "condominium.create"
	ActionCondominiumView   = "condominium.view"

	ActionReportView   = "contribution_report.view"
	ActionReportStream = "contribution_report.stream"
	ActionReportExport = "contribution_report.export"

	ActionResidentCreate = "resident.create"
	ActionResidentView   = "resident.view"

	ActionOverviewView = "resident_overview.view"

	ActionPaymentCreate  = "payment.create"
	ActionPaymentApprove = "payment.approve"
	ActionPaymentCancel  = "payment.cancel"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer loads policies through the gorm adapter and seeds the
// built-in role policies.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

// NewMemoryEnforcer keeps policies in memory only.
func NewMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor Actor, req Request) error {
	if actor.ID == 0 {
		return ErrInvalidActor
	}
	if _, err := ParseRole(string(actor.Role)); err != nil {
		return err
	}
	if actor.Role != RoleSuperAdmin && actor.CondominiumID == 0 {
		return ErrInvalidActor
	}
	object := strings.TrimSpace(req.Object)
	if object == "" {
		return ErrInvalidObject
	}
	action := strings.TrimSpace(req.Action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(actor.Subject(), domainOf(req.CondominiumID), domainOf(actor.CondominiumID), object, action)
	if err != nil {
		return err
	}
	if allowed && actor.Role == RoleResident && req.ResidentID != actor.ID {
		allowed = false
	}
	if !allowed {
		obslogger.WithContext(ctx, s.log).Info("authorization denied",
			zap.String("actor_id", actor.ID.String()),
			zap.String("role", string(actor.Role)),
			zap.String("condominium_id", req.CondominiumID.String()),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func domainOf(condominiumID snowflake.ID) string {
	if condominiumID == 0 {
		return "condo:*"
	}
	return "condo:" + condominiumID.String()
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Residents see their own numbers only.
		{"role:resident", ObjectResidentOverview, ActionOverviewView},

		{"role:coordinator", ObjectCondominium, ActionCondominiumView},
		{"role:coordinator", ObjectContributionReport, ActionReportView},
		{"role:coordinator", ObjectContributionReport, ActionReportStream},
		{"role:coordinator", ObjectContributionReport, ActionReportExport},
		{"role:coordinator", ObjectResident, ActionResidentCreate},
		{"role:coordinator", ObjectResident, ActionResidentView},
		{"role:coordinator", ObjectPayment, ActionPaymentCreate},
		{"role:coordinator", ObjectPayment, ActionPaymentApprove},
		{"role:coordinator", ObjectPayment, ActionPaymentCancel},

		{"role:super_admin", ObjectCondominium, ActionCondominiumCreate},
	}
	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy[0], policy[1], policy[2])
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy[0], policy[1], policy[2]); err != nil {
			return err
		}
	}

	groupings := [][]string{
		{"role:coordinator", "role:resident"},
		{"role:super_admin", "role:coordinator"},
	}
	for _, rule := range groupings {
		has, err := enforcer.HasGroupingPolicy(rule[0], rule[1])
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddGroupingPolicy(rule[0], rule[1]); err != nil {
			return err
		}
	}
	return nil
}
