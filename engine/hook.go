package engine

// HookPos identifies a point in the loop's dispatch cycle a Hook can
// observe.
type HookPos struct {
	Name string
}

// HookCtx carries the information available at a hook site.
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Item   interface{}
	Detail interface{}
}

// Hookable accepts Hooks.
type Hookable interface {
	AcceptHook(hook Hook)
}

// HookPosBeforeEvent fires before a Loop dispatches an event to its handler.
var HookPosBeforeEvent = &HookPos{Name: "BeforeEvent"}

// HookPosAfterEvent fires after a Loop dispatches an event to its handler.
var HookPosAfterEvent = &HookPos{Name: "AfterEvent"}

// Hook observes events flowing through a Hookable, used by the event
// tracer to record dispatch without coupling the loop to any particular
// output format.
type Hook interface {
	Func(ctx HookCtx)
}

// HookableBase implements the bookkeeping Hookable needs.
type HookableBase struct {
	Hooks []Hook
}

func NewHookableBase() *HookableBase {
	return &HookableBase{Hooks: make([]Hook, 0)}
}

func (h *HookableBase) AcceptHook(hook Hook) {
	h.Hooks = append(h.Hooks, hook)
}

func (h *HookableBase) NumHooks() int { return len(h.Hooks) }

func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.Hooks {
		hook.Func(ctx)
	}
}
