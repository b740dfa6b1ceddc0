// Package jsexec evaluates the synthesized patch script outside a browser.
// A goja VM primed with a minimal navigator/screen/document surface stands in
// for the page, so the overrides a detection script would observe can be
// verified offline, before any context is opened.
package jsexec

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/xkilldash9x/stealthctx/internal/browser/stealth"
)

const DefaultTimeout = 10 * time.Second

// prelude is the host surface the patch script expects. setTimeout fires
// immediately so jittered deliveries complete within one Evaluate call.
const prelude = `
function setTimeout(fn, ms) { fn(); return 0; }
var navigator = {
	userAgent: '',
	permissions: {
		query: function (desc) {
			return { then: function (resolve) { resolve({ state: 'prompt' }); return this; } };
		}
	},
	geolocation: {},
	mediaDevices: {}
};
var screen = {};
var document = { fonts: { check: function () { return false; } } };
`

// Observables is what the sandboxed runtime reports after the patch script
// ran, mirroring the live-context introspection fields.
type Observables struct {
	Applied             bool    `json:"applied"`
	Webdriver           bool    `json:"webdriver"`
	HardwareConcurrency int     `json:"hardwareConcurrency"`
	DeviceMemory        int     `json:"deviceMemory"`
	Platform            string  `json:"platform"`
	Vendor              string  `json:"vendor"`
	UAPlatform          string  `json:"uaPlatform"`
	ScreenWidth         int     `json:"screenWidth"`
	ScreenHeight        int     `json:"screenHeight"`
	Downlink            float64 `json:"downlink"`
	RTT                 int     `json:"rtt"`
}

var observeExpression = fmt.Sprintf(`JSON.stringify({
	applied: !!window.%s,
	webdriver: !!navigator.webdriver,
	hardwareConcurrency: navigator.hardwareConcurrency || 0,
	deviceMemory: navigator.deviceMemory || 0,
	platform: navigator.platform || '',
	vendor: navigator.vendor || '',
	uaPlatform: navigator.userAgentData ? navigator.userAgentData.platform : '',
	screenWidth: screen.width || 0,
	screenHeight: screen.height || 0,
	downlink: navigator.connection ? navigator.connection.downlink : 0,
	rtt: navigator.connection ? navigator.connection.rtt : 0
})`, stealth.AppliedMarker)

// Runtime is a single-use sandbox. Evaluate the script, then read the
// observables back; the VM is not safe for concurrent use.
type Runtime struct {
	vm     *goja.Runtime
	logger *zap.Logger
}

// NewRuntime creates the sandbox with the host surface installed.
func NewRuntime(logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	vm := goja.New()
	if err := vm.Set("window", vm.GlobalObject()); err != nil {
		return nil, fmt.Errorf("installing window alias: %w", err)
	}
	if _, err := vm.RunString(prelude); err != nil {
		return nil, fmt.Errorf("installing host surface: %w", err)
	}

	return &Runtime{vm: vm, logger: logger.Named("jsexec")}, nil
}

// Evaluate runs a script in the sandbox, interrupting it when the context is
// canceled or the timeout expires.
func (r *Runtime) Evaluate(ctx context.Context, script string) error {
	timeout := DefaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until > 0 && until < timeout {
			timeout = until
		}
	}

	done := make(chan struct{})
	monitor := make(chan struct{})
	r.vm.ClearInterrupt()

	go func() {
		defer close(monitor)
		select {
		case <-time.After(timeout):
			r.logger.Warn("Sandbox evaluation timeout", zap.Duration("timeout", timeout))
			r.vm.Interrupt("evaluation timeout exceeded")
		case <-ctx.Done():
			r.vm.Interrupt(ctx.Err().Error())
		case <-done:
		}
	}()

	_, err := r.vm.RunString(script)
	close(done)
	<-monitor

	if err != nil {
		if _, ok := err.(*goja.InterruptedError); ok {
			if ctx.Err() != nil {
				return fmt.Errorf("evaluation interrupted: %w", ctx.Err())
			}
			return fmt.Errorf("evaluation interrupted: %w", err)
		}
		if jsErr, ok := err.(*goja.Exception); ok {
			return fmt.Errorf("script exception: %s", jsErr.String())
		}
		return fmt.Errorf("evaluating script: %w", err)
	}
	return nil
}

// Observe reads the patched surface back from the VM.
func (r *Runtime) Observe() (Observables, error) {
	v, err := r.vm.RunString(observeExpression)
	if err != nil {
		return Observables{}, fmt.Errorf("reading observables: %w", err)
	}
	var obs Observables
	if err := json.Unmarshal([]byte(v.String()), &obs); err != nil {
		return Observables{}, fmt.Errorf("decoding observables: %w", err)
	}
	return obs, nil
}
