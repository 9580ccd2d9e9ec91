// Package sandbox adapts the Docker SDK into an optional container-isolated
// backing store for multiplexer sessions: instead of running tmux against
// the host, each agent's session lives inside a disposable, long-running
// container that sandbox.Driver drives via `docker exec`.
package sandbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"

	"github.com/khuongdo/mindmux/internal/common/config"
	"github.com/khuongdo/mindmux/internal/common/logger"
)

// ManagedLabel marks every container this package creates, so ListManaged
// can enumerate them without tracking a side table.
const ManagedLabel = "mindmux.managed"

// ContainerInfo describes one managed sandbox container.
type ContainerInfo struct {
	ID      string
	Name    string
	State   string
	AgentID string
}

// Client wraps the Docker SDK client with the narrow set of operations the
// sandboxed multiplexer driver needs.
type Client struct {
	cli *client.Client
	log *logger.Logger
}

// NewClient creates a new Docker client from sandbox configuration.
func NewClient(cfg config.SandboxConfig, log *logger.Logger) (*Client, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &Client{cli: cli, log: log.WithComponent("sandbox-docker")}, nil
}

// Close releases the underlying Docker client connection.
func (c *Client) Close() error {
	return c.cli.Close()
}

// Ping checks whether the Docker daemon is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.cli.Ping(ctx)
	return err
}

// EnsureAgentContainer creates (if missing) and starts a long-running,
// idle container for agentID that SendKeys/CapturePane run tmux against.
// It is idempotent: calling it for an already-running container is a no-op.
func (c *Client) EnsureAgentContainer(ctx context.Context, agentID, image string) (string, error) {
	name := containerName(agentID)

	existing, err := c.findByName(ctx, name)
	if err == nil && existing != nil {
		if existing.State != "running" {
			if err := c.cli.ContainerStart(ctx, existing.ID, container.StartOptions{}); err != nil {
				return "", fmt.Errorf("restarting sandbox container: %w", err)
			}
		}
		return existing.ID, nil
	}

	resp, err := c.cli.ContainerCreate(ctx, &container.Config{
		Image: image,
		Cmd:   []string{"sleep", "infinity"},
		Labels: map[string]string{
			ManagedLabel:      "true",
			"mindmux.agentId": agentID,
		},
	}, &container.HostConfig{
		AutoRemove: false,
	}, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("creating sandbox container: %w", err)
	}

	if err := c.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("starting sandbox container: %w", err)
	}

	c.log.Info("sandbox container ready", zap.String("agentId", agentID), zap.String("containerId", resp.ID))
	return resp.ID, nil
}

// Exec runs argv inside the agent's container and returns its combined
// stdout and stderr. A non-zero exit status is returned as an error.
func (c *Client) Exec(ctx context.Context, agentID string, argv []string) (string, error) {
	info, err := c.findByName(ctx, containerName(agentID))
	if err != nil || info == nil {
		return "", fmt.Errorf("no sandbox container for agent %s", agentID)
	}

	execID, err := c.cli.ContainerExecCreate(ctx, info.ID, container.ExecOptions{
		Cmd:          argv,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", fmt.Errorf("creating exec: %w", err)
	}

	resp, err := c.cli.ContainerExecAttach(ctx, execID.ID, container.ExecStartOptions{})
	if err != nil {
		return "", fmt.Errorf("attaching exec: %w", err)
	}
	defer resp.Close()

	var sb strings.Builder
	if _, err := stdcopy.StdCopy(&sb, &sb, resp.Reader); err != nil {
		return sb.String(), fmt.Errorf("reading exec output: %w", err)
	}

	inspect, err := c.cli.ContainerExecInspect(ctx, execID.ID)
	if err != nil {
		return sb.String(), fmt.Errorf("inspecting exec: %w", err)
	}
	if inspect.ExitCode != 0 {
		return sb.String(), fmt.Errorf("exec exited with code %d", inspect.ExitCode)
	}
	return sb.String(), nil
}

// RemoveAgentContainer force-removes the sandbox container for agentID, if any.
func (c *Client) RemoveAgentContainer(ctx context.Context, agentID string) error {
	info, err := c.findByName(ctx, containerName(agentID))
	if err != nil || info == nil {
		return nil
	}
	return c.cli.ContainerRemove(ctx, info.ID, container.RemoveOptions{Force: true, RemoveVolumes: true})
}

// ListManaged returns every container this package has created, live or not.
func (c *Client) ListManaged(ctx context.Context) ([]ContainerInfo, error) {
	filterArgs := filters.NewArgs()
	filterArgs.Add("label", ManagedLabel+"=true")

	containers, err := c.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: filterArgs})
	if err != nil {
		return nil, fmt.Errorf("listing sandbox containers: %w", err)
	}

	infos := make([]ContainerInfo, 0, len(containers))
	for _, ctr := range containers {
		name := ""
		if len(ctr.Names) > 0 {
			name = strings.TrimPrefix(ctr.Names[0], "/")
		}
		infos = append(infos, ContainerInfo{
			ID:      ctr.ID,
			Name:    name,
			State:   ctr.State,
			AgentID: ctr.Labels["mindmux.agentId"],
		})
	}
	return infos, nil
}

func (c *Client) findByName(ctx context.Context, name string) (*ContainerInfo, error) {
	filterArgs := filters.NewArgs()
	filterArgs.Add("name", "^/"+name+"$")

	containers, err := c.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: filterArgs})
	if err != nil {
		return nil, err
	}
	if len(containers) == 0 {
		return nil, nil
	}
	return &ContainerInfo{ID: containers[0].ID, Name: name, State: containers[0].State}, nil
}

func containerName(agentID string) string {
	return fmt.Sprintf("mindmux-session-%s", agentID)
}
