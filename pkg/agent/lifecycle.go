package agent

import (
	"context"
	"fmt"
)

// Hook names a lifecycle stage.
type Hook string

const (
	HookSetup Hook = "onsetup"
	HookStart Hook = "onstart"
	HookStop  Hook = "onstop"
)

// SetupHook, StartHook and StopHook are optional; agents implement the stages
// they care about. sender identifies who triggered the stage.
type SetupHook interface {
	OnSetup(ctx context.Context, sender string) (any, error)
}

type StartHook interface {
	OnStart(ctx context.Context, sender string) (any, error)
}

type StopHook interface {
	OnStop(ctx context.Context, sender string) (any, error)
}

// Dispatch runs the hook on a. found is false when a does not implement it.
func Dispatch(ctx context.Context, a Agent, hook Hook, sender string) (value any, found bool, err error) {
	switch hook {
	case HookSetup:
		h, ok := a.(SetupHook)
		if !ok {
			return nil, false, nil
		}
		v, err := h.OnSetup(ctx, sender)
		return v, true, err
	case HookStart:
		h, ok := a.(StartHook)
		if !ok {
			return nil, false, nil
		}
		v, err := h.OnStart(ctx, sender)
		return v, true, err
	case HookStop:
		h, ok := a.(StopHook)
		if !ok {
			return nil, false, nil
		}
		v, err := h.OnStop(ctx, sender)
		return v, true, err
	default:
		return nil, false, fmt.Errorf("unknown lifecycle hook %q", hook)
	}
}
