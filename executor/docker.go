package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/cli/opts"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	docker "github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Paths of the Wan2.2 runtime inside the generation image. The job's
// output dir and image dir are bind-mounted over the matching targets.
const (
	containerWan22Dir  = "/opt/wan22"
	containerModelDir  = "/opt/models/wan22-ti2v-5b"
	containerOutputDir = "/opt/wan22/output"
	containerInputDir  = "/inputs"
)

const (
	containerCreatorLabel = "creator"
	containerCreator      = "wan22-worker"
	containerNamePrefix   = "wan22-generate-"

	defaultPollInterval    = 2 * time.Second
	containerRemoveTimeout = 30 * time.Second
	containerLogTail       = "50"
)

// DockerClient is the slice of the docker engine API the generator uses.
// *docker.Client satisfies it.
type DockerClient interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error)
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
}

// DockerGenerator runs generate.py in a one-shot GPU container per job.
// It is the runner used when the worker lives outside the GPU image.
type DockerGenerator struct {
	cfg   Config
	image string
	gpus  string

	dockerClient DockerClient
	pollInterval time.Duration
}

func NewDockerGenerator(cfg Config, imageRef, gpus string) (*DockerGenerator, error) {
	dockerClient, err := docker.NewClientWithOpts(docker.FromEnv, docker.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}

	g := &DockerGenerator{
		cfg:          cfg.withDefaults(),
		image:        imageRef,
		gpus:         gpus,
		dockerClient: dockerClient,
		pollInterval: defaultPollInterval,
	}

	ctx, cancel := context.WithTimeout(context.Background(), containerRemoveTimeout)
	defer cancel()
	if err := g.removeStaleContainers(ctx); err != nil {
		return nil, err
	}

	go g.pullImageIfMissing(context.Background())

	return g, nil
}

func (g *DockerGenerator) Generate(ctx context.Context, job Job) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	mounts := []mount.Mount{
		{
			Type:   mount.TypeBind,
			Source: job.OutputDir,
			Target: containerOutputDir,
		},
	}
	// Shadow the baked-in weights with a host model cache when one exists.
	if _, err := os.Stat(g.cfg.ModelDir); err == nil {
		mounts = append(mounts, mount.Mount{
			Type:   mount.TypeBind,
			Source: g.cfg.ModelDir,
			Target: containerModelDir,
		})
	}

	// Remap host paths to their container-side mount targets before
	// building the command line.
	containerJob := job
	containerJob.OutputDir = containerOutputDir
	if job.ImagePath != "" {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   filepath.Dir(job.ImagePath),
			Target:   containerInputDir,
			ReadOnly: true,
		})
		containerJob.ImagePath = filepath.Join(containerInputDir, filepath.Base(job.ImagePath))
	}

	containerCfg := Config{
		Wan22Dir: containerWan22Dir,
		ModelDir: containerModelDir,
	}
	cmd := append([]string{DefaultPythonBin}, commandArgs(containerCfg, containerJob)...)

	gpuOpts := opts.GpuOpts{}
	gpuOpts.Set(g.gpus)

	containerConfig := &container.Config{
		Image:      g.image,
		Cmd:        cmd,
		WorkingDir: containerWan22Dir,
		Labels: map[string]string{
			containerCreatorLabel: containerCreator,
		},
	}
	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			DeviceRequests: gpuOpts.Value(),
		},
		Mounts: mounts,
	}

	containerName := containerNamePrefix + uuid.NewString()[:8]
	slog.Info("Starting generation container",
		slog.String("name", containerName),
		slog.String("image", g.image),
		slog.String("gpus", g.gpus))

	resp, err := g.dockerClient.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerName)
	if err != nil {
		return "", fmt.Errorf("creating generation container: %w", err)
	}
	defer g.removeContainer(resp.ID)

	start := time.Now()
	if err := g.dockerClient.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("starting generation container: %w", err)
	}

	exitCode, err := g.waitContainerDone(ctx, resp.ID)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("video generation timed out after %s", g.cfg.Timeout)
		}
		return "", err
	}
	if exitCode != 0 {
		msg := g.containerOutput(resp.ID)
		if msg == "" {
			msg = fmt.Sprintf("exit code %d", exitCode)
		}
		return "", fmt.Errorf("video generation failed: %s", msg)
	}

	slog.Info("Generation container finished",
		slog.String("name", containerName),
		slog.String("took", time.Since(start).Round(time.Second).String()))

	// The container wrote through the bind mount, so the video lands in
	// the job's own output dir on the host.
	return FindOutputVideo(start.Add(-time.Second), job.OutputDir)
}

// waitContainerDone polls the container until it stops and returns its
// exit code.
func (g *DockerGenerator) waitContainerDone(ctx context.Context, containerID string) (int, error) {
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
			info, err := g.dockerClient.ContainerInspect(ctx, containerID)
			if err != nil {
				return 0, fmt.Errorf("inspecting generation container: %w", err)
			}
			if info.State == nil || info.State.Running {
				continue
			}
			return info.State.ExitCode, nil
		}
	}
}

// containerOutput returns the tail of the container's stderr, falling back
// to stdout, for failure messages.
func (g *DockerGenerator) containerOutput(containerID string) string {
	ctx, cancel := context.WithTimeout(context.Background(), containerRemoveTimeout)
	defer cancel()

	logs, err := g.dockerClient.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       containerLogTail,
	})
	if err != nil {
		return ""
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		return msg
	}
	return strings.TrimSpace(stdout.String())
}

func (g *DockerGenerator) removeContainer(containerID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), containerRemoveTimeout)
	err := g.dockerClient.ContainerStop(ctx, containerID, container.StopOptions{})
	cancel()
	// Ignore "not found" or "already stopped" errors
	if err != nil && !docker.IsErrNotFound(err) && !errdefs.IsNotModified(err) {
		return err
	}

	ctx, cancel = context.WithTimeout(context.Background(), containerRemoveTimeout)
	defer cancel()
	err = g.dockerClient.ContainerRemove(ctx, containerID, container.RemoveOptions{})
	if err != nil && !docker.IsErrNotFound(err) {
		return err
	}
	return nil
}

// removeStaleContainers removes generation containers left behind by a
// previous worker process.
func (g *DockerGenerator) removeStaleContainers(ctx context.Context) error {
	labelFilter := filters.NewArgs(filters.Arg("label", containerCreatorLabel+"="+containerCreator))
	containers, err := g.dockerClient.ContainerList(ctx, container.ListOptions{All: true, Filters: labelFilter})
	if err != nil {
		return err
	}

	for _, c := range containers {
		slog.Info("Removing stale generation container", slog.String("name", c.Names[0]))
		if err := g.removeContainer(c.ID); err != nil {
			return err
		}
	}

	return nil
}

// pullImageIfMissing pulls the generation image when it is not available
// locally so the first job does not pay the pull latency inline.
func (g *DockerGenerator) pullImageIfMissing(ctx context.Context) {
	if _, _, err := g.dockerClient.ImageInspectWithRaw(ctx, g.image); err == nil {
		return
	}

	slog.Info("Pulling generation image", slog.String("image", g.image))
	reader, err := g.dockerClient.ImagePull(ctx, g.image, image.PullOptions{})
	if err != nil {
		slog.Error("Failed to pull generation image",
			slog.String("image", g.image),
			slog.String("error", err.Error()))
		return
	}
	defer reader.Close()

	// The pull completes when the progress stream drains.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		slog.Error("Failed to pull generation image",
			slog.String("image", g.image),
			slog.String("error", err.Error()))
	}
}
