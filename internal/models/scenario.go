package models

import (
	"fmt"
	"strings"
)

// Scenario is a synthetic incident with its known-correct resolution.
type Scenario struct {
	Name        string    `toml:"name"`
	Description string    `toml:"description"`
	GroundTruth string    `toml:"ground_truth"`
	Question    string    `toml:"question"`
	Telemetry   Telemetry `toml:"telemetry"`
}

// Telemetry is the observable state handed to each strategy.
type Telemetry struct {
	ErrorRate           string   `toml:"error_rate"`
	AffectedEndpoints   []string `toml:"affected_endpoints"`
	DeploymentVersion   string   `toml:"deployment_version"`
	PreviousVersion     string   `toml:"previous_version"`
	DatabaseConnections string   `toml:"database_connections"`
	ResponseTimeP95     string   `toml:"response_time_p95"`
	FirstErrorTimestamp string   `toml:"first_error_timestamp"`
}

// Context renders the incident as the text sent to decision services.
func (s Scenario) Context() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Incident: %s\n\n", s.Description)
	b.WriteString("Telemetry:\n")
	fmt.Fprintf(&b, "- Error rate: %s\n", s.Telemetry.ErrorRate)
	fmt.Fprintf(&b, "- Affected endpoints: %s\n", strings.Join(s.Telemetry.AffectedEndpoints, ", "))
	fmt.Fprintf(&b, "- Current deployment: %s\n", s.Telemetry.DeploymentVersion)
	fmt.Fprintf(&b, "- Previous stable version: %s\n", s.Telemetry.PreviousVersion)
	fmt.Fprintf(&b, "- Database connections: %s\n", s.Telemetry.DatabaseConnections)
	fmt.Fprintf(&b, "- Response time (p95): %s\n\n", s.Telemetry.ResponseTimeP95)
	b.WriteString(s.Question)
	return b.String()
}
