package api

import (
	"time"

	"github.com/artpar/simplets/internal/core/domain"
	"github.com/artpar/simplets/internal/core/simplet"
	"github.com/artpar/simplets/internal/shell/registry"
)

// =============================================================================
// Response Types
// =============================================================================

// JobResponse carries the status line of a deployment job.
type JobResponse struct {
	Message string `json:"message"`
}

// StackResponse describes one registered stack.
type StackResponse struct {
	Key          string         `json:"key"`
	Service      string         `json:"service"`
	Identity     string         `json:"identity"`
	DeploymentID string         `json:"deployment_id,omitempty"`
	DeployedAt   time.Time      `json:"deployed_at"`
	Failed       bool           `json:"failed,omitempty"`
	Name         string         `json:"name,omitempty"`
	Status       string         `json:"status,omitempty"`
	Containers   []ContainerRef `json:"containers,omitempty"`
	Ports        []PortResponse `json:"ports,omitempty"`
}

// ContainerRef names one container of a stack.
type ContainerRef struct {
	Role        string `json:"role"`
	ContainerID string `json:"container_id"`
}

// PortResponse is a published application port.
type PortResponse struct {
	ContainerPort int    `json:"container_port"`
	HostPort      int    `json:"host_port"`
	Protocol      string `json:"protocol"`
}

// ListStacksResponse is the response for listing stacks.
type ListStacksResponse struct {
	Stacks []StackResponse `json:"stacks"`
	Total  int             `json:"total"`
}

// StackActionResponse is the response for stop and remove.
type StackActionResponse struct {
	Key    string `json:"key"`
	Status string `json:"status"`
}

// DeploymentResponse is one ledger record.
type DeploymentResponse struct {
	ID           string    `json:"id"`
	RegistryKey  string    `json:"registry_key"`
	Service      string    `json:"service"`
	Identity     string    `json:"identity"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ListDeploymentsResponse is the response for listing deployments.
type ListDeploymentsResponse struct {
	Deployments []DeploymentResponse `json:"deployments"`
	Total       int                  `json:"total"`
	Limit       int                  `json:"limit"`
	Offset      int                  `json:"offset"`
}

// ErrorResponse is the error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status        string `json:"status"`
	RunningStacks int    `json:"running_stacks"`
}

// =============================================================================
// Conversion
// =============================================================================

func stackToResponse(e registry.Entry) StackResponse {
	resp := StackResponse{
		Key:          e.Key,
		Service:      string(e.Kind),
		Identity:     e.Identity,
		DeploymentID: e.DeploymentID,
		DeployedAt:   e.DeployedAt,
		Failed:       e.Failed,
	}

	inspector, ok := e.Stack.(stackInspector)
	if !ok {
		return resp
	}
	info := inspector.Info()
	resp.Name = info.Name
	resp.Status = string(info.Status)
	if info.DatabaseContainerID != "" {
		resp.Containers = append(resp.Containers, ContainerRef{Role: simplet.RoleDatabase, ContainerID: info.DatabaseContainerID})
	}
	if info.AppContainerID != "" {
		resp.Containers = append(resp.Containers, ContainerRef{Role: simplet.RoleApp, ContainerID: info.AppContainerID})
	}
	for _, p := range info.AppPorts {
		resp.Ports = append(resp.Ports, PortResponse{
			ContainerPort: p.ContainerPort,
			HostPort:      p.HostPort,
			Protocol:      p.Protocol,
		})
	}
	return resp
}

func deploymentToResponse(d domain.Deployment) DeploymentResponse {
	return DeploymentResponse{
		ID:           d.ID,
		RegistryKey:  d.RegistryKey,
		Service:      string(d.Service),
		Identity:     d.Identity,
		Status:       string(d.Status),
		ErrorMessage: d.ErrorMessage,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}
