// Package authorization enforces privileged-action checks with casbin.
package authorization

import (
	"context"
	_ "embed"
	"errors"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectSubscription = "subscription"
	ObjectUsage        = "usage"
)

const (
	ActionSubscriptionDowngrade = "subscription.downgrade"
	ActionSubscriptionCancel    = "subscription.cancel"
	ActionSubscriptionUpgrade   = "subscription.upgrade"
	ActionUsageMutate           = "usage.mutate"
	ActionUsageView             = "usage.view"
)

const (
	RoleAdmin  = "role:admin"
	RoleMember = "role:member"
	RoleSystem = "role:system"
)

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)

type Service interface {
	Authorize(ctx context.Context, role, object, action string) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

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
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{RoleAdmin, ObjectSubscription, ActionSubscriptionDowngrade},
		{RoleAdmin, ObjectSubscription, ActionSubscriptionCancel},
		{RoleAdmin, ObjectSubscription, ActionSubscriptionUpgrade},
		{RoleAdmin, ObjectUsage, ActionUsageMutate},
		{RoleAdmin, ObjectUsage, ActionUsageView},
		{RoleMember, ObjectUsage, ActionUsageMutate},
		{RoleMember, ObjectUsage, ActionUsageView},
		{RoleSystem, ObjectSubscription, ActionSubscriptionDowngrade},
		{RoleSystem, ObjectSubscription, ActionSubscriptionCancel},
	}
	for _, p := range policies {
		if _, err := enforcer.AddPolicy(p[0], p[1], p[2]); err != nil {
			return err
		}
	}
	return nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

// Authorize checks whether the given role may perform action on object.
// Roles arrive as bare names (admin, member, system) or prefixed (role:admin).
func (s *ServiceImpl) Authorize(ctx context.Context, role, object, action string) error {
	role = strings.TrimSpace(role)
	if role == "" {
		return ErrInvalidActor
	}
	if !strings.HasPrefix(role, "role:") {
		role = "role:" + role
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(role, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("role", role),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)
