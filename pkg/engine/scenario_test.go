package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/flowcheck/pkg/driver"
)

func TestScenarioValidate(t *testing.T) {
	visible := Outcome{Kind: OutcomeTextVisible, Text: "Dashboard"}
	click := Step{Kind: StepClick, Target: xpath("//button")}

	tests := []struct {
		name    string
		sc      Scenario
		wantErr string
	}{
		{
			name: "valid",
			sc: Scenario{Name: "ok", Steps: []Step{
				{Kind: StepNavigate, Value: "/"},
				{Kind: StepClick, Target: xpath("//button"), Alternate: &Step{Kind: StepClick, Target: xpath("//a")}},
				{Kind: StepWait},
				{Kind: StepAssert, Expect: &visible},
			}, Expect: visible},
		},
		{name: "missing name", sc: Scenario{Expect: visible}, wantErr: "name is required"},
		{name: "navigate without url", sc: Scenario{Name: "x", Steps: []Step{{Kind: StepNavigate}}, Expect: visible}, wantErr: "requires a url"},
		{name: "click without target", sc: Scenario{Name: "x", Steps: []Step{{Kind: StepClick}}, Expect: visible}, wantErr: "requires a target"},
		{name: "unknown kind", sc: Scenario{Name: "x", Steps: []Step{{Kind: "hover"}}, Expect: visible}, wantErr: "invalid step kind"},
		{name: "assert without outcome", sc: Scenario{Name: "x", Steps: []Step{{Kind: StepAssert}}, Expect: visible}, wantErr: "expected outcome"},
		{
			name: "nested alternate",
			sc: Scenario{Name: "x", Steps: []Step{{
				Kind: StepClick, Target: xpath("//a"),
				Alternate: &Step{Kind: StepClick, Target: xpath("//b"), Alternate: &click},
			}}, Expect: visible},
			wantErr: "cannot have its own alternate",
		},
		{
			name:    "bad strategy",
			sc:      Scenario{Name: "x", Steps: []Step{{Kind: StepClick, Target: &Locator{Strategy: "id", Path: "submit"}}}, Expect: visible},
			wantErr: "invalid locator strategy",
		},
		{
			name:    "negative index",
			sc:      Scenario{Name: "x", Steps: []Step{{Kind: StepClick, Target: &Locator{Strategy: driver.StrategyCSS, Path: "a", Index: -1}}}, Expect: visible},
			wantErr: "index cannot be negative",
		},
		{
			name:    "bad wait state",
			sc:      Scenario{Name: "x", Steps: []Step{{Kind: StepWait, WaitUntil: "ready"}}, Expect: visible},
			wantErr: "invalid load state",
		},
		{name: "missing outcome", sc: Scenario{Name: "x"}, wantErr: "invalid outcome kind"},
		{name: "outcome without text", sc: Scenario{Name: "x", Expect: Outcome{Kind: OutcomeTextAbsent}}, wantErr: "requires text"},
		{name: "target-text without target", sc: Scenario{Name: "x", Expect: Outcome{Kind: OutcomeTargetText, Text: "a"}}, wantErr: "requires a target"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sc.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidScenario)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStepLabel(t *testing.T) {
	assert.Equal(t, "sign in", Step{Name: "sign in", Kind: StepClick}.Label())
	assert.Equal(t, "navigate /billing", Step{Kind: StepNavigate, Value: "/billing"}.Label())
	assert.Equal(t, "fill //input", Step{Kind: StepFill, Target: xpath("//input")}.Label())
	assert.Equal(t, "wait", Step{Kind: StepWait}.Label())
}

func TestLocatorString(t *testing.T) {
	loc := Locator{Strategy: driver.StrategyXPath, Path: "//button", Index: 2, Frame: "checkout"}
	assert.Equal(t, `xpath=//button [2] in frame "checkout"`, loc.String())
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "Pass", Pass().String())
	assert.Equal(t, "Fail(dashboard text not found)", Fail("dashboard text not found").String())
	assert.Equal(t, "Error(action timeout)", Errored(ErrActionTimeout).String())
}
