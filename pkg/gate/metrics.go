package gate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var decisionCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gatekeeper_authz_decisions_total",
		Help: "Authorization decisions by outcome",
	},
	[]string{"decision", "module"},
)

const (
	decisionGranted           = "granted"
	decisionBypass            = "superadmin_bypass"
	decisionDeniedEntitlement = "denied_entitlement"
	decisionDeniedPermission  = "denied_permission"
)
