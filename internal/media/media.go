// Package media renders image and video artifacts. Images come from an
// Automatic1111 txt2img endpoint; videos are built by generating a frame
// sequence through the same endpoint and stitching it with ffmpeg.
// Artifacts land under the data directory's outputs/ folder, named
// <kind>-<timestamp>.<ext>.
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BA-SupportII/BA-AI/internal/config"
	"github.com/BA-SupportII/BA-AI/internal/httpkit"
)

// ErrUnavailable marks a request against a media backend that is not
// configured or not installed.
var ErrUnavailable = errors.New("media backend unavailable")

// Generation bounds. Requests outside them are clamped, not rejected.
const (
	maxDimension  = 1536
	minDimension  = 64
	maxSteps      = 60
	defaultSteps  = 20
	defaultWidth  = 512
	defaultHeight = 512
	maxFrames     = 48
	defaultFrames = 8
	defaultFPS    = 4
)

// Service owns the media backends and the output directory.
type Service struct {
	a1111URL string
	ffmpeg   string
	outDir   string
	client   *http.Client
	logger   *slog.Logger

	// now stamps artifact names; tests pin it.
	now func() time.Time
}

// New creates a media service. dataDir is the process data directory;
// artifacts go to dataDir/outputs.
func New(cfg config.MediaConfig, dataDir string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	ffmpeg := cfg.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	return &Service{
		a1111URL: cfg.A1111URL,
		ffmpeg:   ffmpeg,
		outDir:   filepath.Join(dataDir, "outputs"),
		client: httpkit.NewClient(
			httpkit.WithTimeout(120 * time.Second),
		),
		logger: logger.With("component", "media"),
		now:    time.Now,
	}
}

// ImageConfigured reports whether an A1111 endpoint is set.
func (s *Service) ImageConfigured() bool { return s.a1111URL != "" }

// VideoConfigured reports whether both the image backend and ffmpeg are
// usable.
func (s *Service) VideoConfigured() bool {
	if !s.ImageConfigured() {
		return false
	}
	_, err := exec.LookPath(s.ffmpeg)
	return err == nil
}

// ImageRequest is one txt2img call.
type ImageRequest struct {
	Prompt   string `json:"prompt"`
	Negative string `json:"negative,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Steps    int    `json:"steps,omitempty"`
	Seed     int64  `json:"seed,omitempty"`
}

// VideoRequest renders a short clip from a generated frame sequence.
type VideoRequest struct {
	Prompt string `json:"prompt"`
	Frames int    `json:"frames,omitempty"`
	FPS    int    `json:"fps,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Steps  int    `json:"steps,omitempty"`
}

// Artifact describes one rendered output file.
type Artifact struct {
	Kind      string    `json:"kind"` // "image" or "video"
	Path      string    `json:"path"`
	Bytes     int       `json:"bytes"`
	CreatedAt time.Time `json:"createdAt"`
}

// txt2imgRequest is the A1111 wire shape.
type txt2imgRequest struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Steps          int    `json:"steps"`
	Seed           int64  `json:"seed,omitempty"`
}

type txt2imgResponse struct {
	Images []string `json:"images"`
}

// GenerateImage renders one image and writes it to the outputs folder.
func (s *Service) GenerateImage(ctx context.Context, req ImageRequest) (*Artifact, error) {
	data, err := s.txt2img(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.writeArtifact("image", "png", data)
}

// RenderVideo generates a frame sequence and stitches it into an mp4.
// Frame seeds step deterministically so consecutive frames vary.
func (s *Service) RenderVideo(ctx context.Context, req VideoRequest) (*Artifact, error) {
	if !s.ImageConfigured() {
		return nil, fmt.Errorf("%w: image backend not configured", ErrUnavailable)
	}
	if _, err := exec.LookPath(s.ffmpeg); err != nil {
		return nil, fmt.Errorf("%w: %s not found", ErrUnavailable, s.ffmpeg)
	}

	frames := clamp(req.Frames, 1, maxFrames, defaultFrames)
	fps := clamp(req.FPS, 1, 30, defaultFPS)

	frameDir, err := os.MkdirTemp("", "ba-ai-frames-")
	if err != nil {
		return nil, fmt.Errorf("frame dir: %w", err)
	}
	defer os.RemoveAll(frameDir)

	img := ImageRequest{
		Prompt: req.Prompt,
		Width:  req.Width,
		Height: req.Height,
		Steps:  req.Steps,
	}
	for i := 0; i < frames; i++ {
		img.Seed = int64(i + 1)
		data, err := s.txt2img(ctx, img)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i+1, err)
		}
		name := filepath.Join(frameDir, fmt.Sprintf("frame-%03d.png", i+1))
		if err := os.WriteFile(name, data, 0o644); err != nil {
			return nil, fmt.Errorf("write frame %d: %w", i+1, err)
		}
	}

	if err := os.MkdirAll(s.outDir, 0o755); err != nil {
		return nil, fmt.Errorf("outputs dir: %w", err)
	}
	outPath := filepath.Join(s.outDir, s.artifactName("video", "mp4"))

	args := []string{
		"-y",
		"-framerate", strconv.Itoa(fps),
		"-i", filepath.Join(frameDir, "frame-%03d.png"),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		outPath,
	}
	cmd := exec.CommandContext(ctx, s.ffmpeg, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, truncate(stderr.String(), 512))
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg produced no output: %w", err)
	}
	s.logger.Info("video rendered", "path", outPath, "frames", frames, "fps", fps, "bytes", info.Size())
	return &Artifact{Kind: "video", Path: outPath, Bytes: int(info.Size()), CreatedAt: s.now().UTC()}, nil
}

// txt2img calls the A1111 endpoint and returns the first image's bytes.
func (s *Service) txt2img(ctx context.Context, req ImageRequest) ([]byte, error) {
	if !s.ImageConfigured() {
		return nil, fmt.Errorf("%w: image backend not configured", ErrUnavailable)
	}

	wire := txt2imgRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.Negative,
		Width:          clamp(req.Width, minDimension, maxDimension, defaultWidth),
		Height:         clamp(req.Height, minDimension, maxDimension, defaultHeight),
		Steps:          clamp(req.Steps, 1, maxSteps, defaultSteps),
		Seed:           req.Seed,
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encode txt2img request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.a1111URL+"/sdapi/v1/txt2img", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build txt2img request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("txt2img: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := httpkit.ReadErrorBody(resp.Body, 512)
		return nil, fmt.Errorf("txt2img: HTTP %d: %s", resp.StatusCode, msg)
	}

	var out txt2imgResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode txt2img response: %w", err)
	}
	if len(out.Images) == 0 {
		return nil, errors.New("txt2img returned no images")
	}
	data, err := base64.StdEncoding.DecodeString(out.Images[0])
	if err != nil {
		return nil, fmt.Errorf("decode image payload: %w", err)
	}
	return data, nil
}

// writeArtifact stores data under outputs/ with the canonical name.
func (s *Service) writeArtifact(kind, ext string, data []byte) (*Artifact, error) {
	if err := os.MkdirAll(s.outDir, 0o755); err != nil {
		return nil, fmt.Errorf("outputs dir: %w", err)
	}
	path := filepath.Join(s.outDir, s.artifactName(kind, ext))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write artifact: %w", err)
	}
	s.logger.Info("artifact written", "kind", kind, "path", path, "bytes", len(data))
	return &Artifact{Kind: kind, Path: path, Bytes: len(data), CreatedAt: s.now().UTC()}, nil
}

// artifactName builds <kind>-<timestamp>.<ext>. Colons are dashed so
// the name stays portable across filesystems.
func (s *Service) artifactName(kind, ext string) string {
	stamp := s.now().UTC().Format("2006-01-02T15-04-05.000Z")
	return kind + "-" + stamp + "." + ext
}

func clamp(v, lo, hi, def int) int {
	if v == 0 {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
