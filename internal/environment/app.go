// Package environment runs the per pull request and per deployment
// application environments inside a provisioned project subnet.
package environment

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/go-playground/validator/v10"

	"github.com/iac-studio/envforge/internal/dns"
	"github.com/iac-studio/envforge/internal/network"
	"github.com/iac-studio/envforge/internal/tagging"
	appErr "github.com/iac-studio/envforge/pkg/errors"
)

const sshPort int32 = 22

// AppDefinition describes the container an environment runs.
type AppDefinition struct {
	Image string            `json:"image" validate:"required"`
	Ports []int32           `json:"ports" validate:"dive,min=1,max=65535"`
	Env   map[string]string `json:"env"`
}

// SSHData lists the public keys allowed to log into the instance.
type SSHData struct {
	PublicKeys []string `json:"public_keys"`
}

// Environment is the result of creating or updating an environment.
type Environment struct {
	ProjectID       string `json:"project_id"`
	PR              string `json:"pr,omitempty"`
	Deployment      string `json:"deployment,omitempty"`
	SHA             string `json:"sha,omitempty"`
	InstanceID      string `json:"instance_id"`
	SecurityGroupID string `json:"security_group_id"`
	PublicIP        string `json:"public_ip"`
	Subdomain       string `json:"subdomain"`
}

// Subnets locates the project subnet environments are placed in.
type Subnets interface {
	FindProject(ctx context.Context, projectID string) (*types.Subnet, error)
}

type SecurityGroups interface {
	Create(ctx context.Context, projectID, pr string) (*ec2.CreateSecurityGroupOutput, error)
	CreateForDeployment(ctx context.Context, projectID, deployment string) (*ec2.CreateSecurityGroupOutput, error)
	AuthorizeIngress(ctx context.Context, groupID string, ports []int32) error
	DescribeOwned(ctx context.Context, o tagging.Owner) ([]types.SecurityGroup, error)
	Destroy(ctx context.Context, groupID, projectID, pr string) error
	DestroyForDeployment(ctx context.Context, groupID, projectID, deployment string) error
}

type Instances interface {
	Run(ctx context.Context, spec network.RunSpec) (*types.Instance, error)
	WaitForPublicIP(ctx context.Context, instanceID string) (string, error)
	WaitTerminated(ctx context.Context, ids []string) error
	DescribePR(ctx context.Context, projectID, pr string) ([]types.Instance, error)
	DescribeDeployment(ctx context.Context, projectID, deployment string) ([]types.Instance, error)
	Terminate(ctx context.Context, o tagging.Owner) ([]string, error)
	TerminateOthers(ctx context.Context, o tagging.Owner, keepID string) ([]string, error)
}

type Records interface {
	CreatePRRecord(ctx context.Context, projectID, pr, ip string, opts ...dns.ChangeOption) (*route53.ChangeResourceRecordSetsOutput, error)
	DestroyPRRecord(ctx context.Context, projectID, pr, ip string, opts ...dns.ChangeOption) (*route53.ChangeResourceRecordSetsOutput, error)
	CreateDeploymentRecord(ctx context.Context, projectID, deployment, ip string, opts ...dns.ChangeOption) (*route53.ChangeResourceRecordSetsOutput, error)
	DestroyDeploymentRecord(ctx context.Context, projectID, deployment, ip string, opts ...dns.ChangeOption) (*route53.ChangeResourceRecordSetsOutput, error)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (a AppDefinition) Validate() error {
	if err := validate.Struct(a); err != nil {
		return appErr.Wrap(err, appErr.CodeInvalid, "invalid app definition")
	}
	return nil
}

// ingressPorts returns the app ports plus ssh when keys are given, sorted
// and without duplicates.
func ingressPorts(app AppDefinition, ssh SSHData) []int32 {
	seen := map[int32]bool{}
	var out []int32
	add := func(p int32) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, p := range app.Ports {
		add(p)
	}
	if len(ssh.PublicKeys) > 0 {
		add(sshPort)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var userDataTmpl = template.Must(template.New("user-data").Funcs(template.FuncMap{
	"quote": shellQuote,
}).Parse(`#!/bin/bash
set -euo pipefail
{{- if .PublicKeys}}
mkdir -p /home/ec2-user/.ssh
{{- range .PublicKeys}}
echo {{quote .}} >> /home/ec2-user/.ssh/authorized_keys
{{- end}}
chown -R ec2-user:ec2-user /home/ec2-user/.ssh
chmod 600 /home/ec2-user/.ssh/authorized_keys
{{- end}}
systemctl enable --now docker
docker pull {{quote .Image}}
docker run -d --restart unless-stopped --name envforge-app{{range .Ports}} -p {{.}}:{{.}}{{end}}{{range .Env}} -e {{quote .}}{{end}} {{quote .Image}}
`))

// UserData renders the boot script that starts the app container.
func UserData(o tagging.Owner, sha string, app AppDefinition, ssh SSHData) (string, error) {
	env := make([]string, 0, len(app.Env)+3)
	for k, v := range app.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	env = append(env, "ENVFORGE_PROJECT="+o.ProjectID)
	if o.PR != "" {
		env = append(env, "ENVFORGE_PR="+o.PR)
	}
	if o.Deployment != "" {
		env = append(env, "ENVFORGE_DEPLOYMENT="+o.Deployment)
	}
	if sha != "" {
		env = append(env, "ENVFORGE_SHA="+sha)
	}

	var buf bytes.Buffer
	err := userDataTmpl.Execute(&buf, struct {
		Image      string
		Ports      []int32
		Env        []string
		PublicKeys []string
	}{app.Image, app.Ports, env, ssh.PublicKeys})
	if err != nil {
		return "", fmt.Errorf("render user data: %w", err)
	}
	return buf.String(), nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func publicIP(instances []types.Instance) string {
	for _, in := range instances {
		if in.PublicIpAddress != nil && *in.PublicIpAddress != "" {
			return *in.PublicIpAddress
		}
	}
	return ""
}

// authorizedPorts returns the tcp ports already open on g.
func authorizedPorts(g types.SecurityGroup) map[int32]bool {
	out := map[int32]bool{}
	for _, p := range g.IpPermissions {
		if p.FromPort != nil {
			out[*p.FromPort] = true
		}
	}
	return out
}
