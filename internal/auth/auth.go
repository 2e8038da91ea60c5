package auth

import (
	"go.uber.org/zap"

	"streakkeeper/internal/errors"
	"streakkeeper/internal/models"
)

type Decision int

const (
	Denied Decision = iota
	Allowed
	BindAndAllow
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case BindAndAllow:
		return "bind_and_allow"
	default:
		return "denied"
	}
}

// StateUpdater is the part of the state store the gate needs to persist a binding.
type StateUpdater interface {
	Update(fn func(*models.State) error) (*models.State, error)
}

// Gate restricts the remote control to one chat. The first chat to issue a
// command binds itself when AutoBind is set; every other chat is denied from
// then on. There is no unbind.
type Gate struct {
	store    StateUpdater
	autoBind bool
	log      *zap.Logger
}

func NewGate(store StateUpdater, autoBind bool, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{store: store, autoBind: autoBind, log: log}
}

// Authorize decides for operatorID and, on BindAndAllow, persists the binding
// and updates st in place.
func (g *Gate) Authorize(st *models.State, operatorID string) (Decision, error) {
	if operatorID == "" {
		return Denied, nil
	}
	if st.BoundOperatorID != "" {
		if st.BoundOperatorID == operatorID {
			return Allowed, nil
		}
		g.log.Warn("command from unauthorized chat dropped",
			zap.String("chat_id", operatorID), zap.Error(errors.ErrAuthDenied))
		return Denied, nil
	}
	if !g.autoBind {
		g.log.Warn("no operator bound and auto bind disabled",
			zap.String("chat_id", operatorID))
		return Denied, nil
	}

	var raced bool
	fresh, err := g.store.Update(func(s *models.State) error {
		// another process may have bound meanwhile
		if s.BoundOperatorID != "" && s.BoundOperatorID != operatorID {
			raced = true
			return nil
		}
		s.BoundOperatorID = operatorID
		return nil
	})
	if err != nil {
		return Denied, errors.Wrap(err, "binding operator")
	}
	st.BoundOperatorID = fresh.BoundOperatorID
	if raced {
		return Denied, nil
	}

	g.log.Info("operator bound", zap.String("chat_id", operatorID))
	return BindAndAllow, nil
}

// Preconfigure binds a chat id taken from configuration when state has none.
// An existing binding always wins.
func (g *Gate) Preconfigure(st *models.State, operatorID string) error {
	if operatorID == "" || st.BoundOperatorID != "" {
		return nil
	}
	fresh, err := g.store.Update(func(s *models.State) error {
		if s.BoundOperatorID == "" {
			s.BoundOperatorID = operatorID
		}
		return nil
	})
	if err != nil {
		return err
	}
	st.BoundOperatorID = fresh.BoundOperatorID
	return nil
}
