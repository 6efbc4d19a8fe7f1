package templates

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed systemd-service.template
var systemdServiceTemplate string

// SystemdService holds the values rendered into the systemd unit.
type SystemdService struct {
	User            string
	Group           string // optional
	WorkingDir      string
	EnvironmentFile string // optional, loaded with a leading '-' so it may be absent
	ExecStart       string
}

// RenderSystemdService renders the systemd unit for the receiver.
func RenderSystemdService(svc SystemdService) (string, error) {
	for name, v := range map[string]string{"user": svc.User, "working directory": svc.WorkingDir, "exec start": svc.ExecStart} {
		if strings.TrimSpace(v) == "" {
			return "", fmt.Errorf("systemd service %s is required", name)
		}
	}
	for _, v := range []string{svc.User, svc.Group, svc.WorkingDir, svc.EnvironmentFile, svc.ExecStart} {
		if strings.ContainsAny(v, "\n\r") {
			return "", fmt.Errorf("systemd service values cannot contain newlines")
		}
	}

	tmpl, err := template.New("systemd-service").Parse(systemdServiceTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, svc); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
