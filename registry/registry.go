// Package registry owns trained artifacts: loading them from disk at
// startup, persisting new ones, and swapping the active version without
// disturbing in-flight predictions.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"maternalcare.com/mrp/logger"
	"maternalcare.com/mrp/ml"
	"maternalcare.com/mrp/ml/metrics"
	"maternalcare.com/mrp/types"
	"maternalcare.com/mrp/utils"
)

const versionInfoFile = "version_info.json"

// Metadata is the side-car record written next to every model file.
type Metadata struct {
	RiskType        types.RiskType `json:"risk_type"`
	ModelType       string         `json:"model_type"`
	TrainedAt       time.Time      `json:"trained_at"`
	Features        []string       `json:"features"`
	FeaturesHash    uint64         `json:"features_hash"`
	Performance     metrics.Report `json:"performance"`
	DatasetSize     int            `json:"dataset_size"`
	Version         string         `json:"version"`
	Active          bool           `json:"active"`
	MeetsThresholds bool           `json:"meets_thresholds"`
}

// Artifact is one loaded predictor with its optional preprocessor.
type Artifact struct {
	Predictor    ml.Predictor
	Preprocessor ml.Transformer
	Meta         Metadata
}

// Mirror is an optional remote copy of the artifact directory.
type Mirror interface {
	Pull(name string) ([]byte, error)
	Push(name string, data []byte) error
	List() ([]string, error)
}

type Registry struct {
	dir    string
	mirror Mirror
	log    zerolog.Logger

	mu       sync.RWMutex
	active   map[types.RiskType]*Artifact
	versions map[types.RiskType]map[string]*Artifact
}

func New(dir string) *Registry {
	return &Registry{
		dir:      dir,
		log:      logger.NewLogger("ModelRegistry"),
		active:   make(map[types.RiskType]*Artifact),
		versions: make(map[types.RiskType]map[string]*Artifact),
	}
}

// WithMirror attaches a remote artifact mirror. Mirror failures never fail
// local operation.
func (r *Registry) WithMirror(m Mirror) *Registry {
	r.mirror = m
	return r
}

func modelFile(rt types.RiskType) string        { return string(rt) + "_model.json" }
func infoFile(rt types.RiskType) string         { return string(rt) + "_model_info.json" }
func preprocessorFile(rt types.RiskType) string { return string(rt) + "_preprocessor.json" }

func versionedName(base, version string) string {
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)] + "." + version + ext
}

// NewVersion derives a version id from the clock; callers pass it to Save.
func NewVersion() string {
	return time.Now().UTC().Format("20060102150405")
}

// LoadAll scans the artifact directory and loads whatever deserializes.
// version_info.json pins which version serves each risk type, so rollbacks
// and threshold rejections survive a restart. A corrupt or mismatched
// artifact is logged and skipped; prediction for that risk type then uses
// the rule fallback.
func (r *Registry) LoadAll() error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}
	r.pullFromMirror()
	pinned := r.readVersionInfo()

	for _, riskType := range types.AllRiskTypes {
		version := pinned[string(riskType)]
		artifact, err := r.loadArtifact(riskType, version)
		if err != nil && version != "" && os.IsNotExist(err) {
			artifact, err = r.loadArtifact(riskType, "")
		}
		if err != nil {
			if !os.IsNotExist(err) {
				r.log.Error().Err(err).Str("risk_type", string(riskType)).Msg("Failed to load artifact, continuing without it")
			}
			continue
		}
		r.mu.Lock()
		r.rememberLocked(artifact)
		r.active[riskType] = artifact
		r.mu.Unlock()
		r.log.Info().
			Str("risk_type", string(riskType)).
			Str("model_type", artifact.Meta.ModelType).
			Str("version", artifact.Meta.Version).
			Msg("Loaded artifact")
	}
	return nil
}

// loadArtifact reads one artifact's file trio. An empty version reads the
// unversioned files, which only ever hold a model that was activated; a
// non-empty version reads the pinned copy recorded by version_info.json.
func (r *Registry) loadArtifact(riskType types.RiskType, version string) (*Artifact, error) {
	name := func(base string) string {
		if version == "" {
			return base
		}
		return versionedName(base, version)
	}

	infoBytes, err := os.ReadFile(filepath.Join(r.dir, name(infoFile(riskType))))
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(infoBytes, &meta); err != nil {
		return nil, fmt.Errorf("metadata side-car: %w", err)
	}
	if hash := utils.HashStrings(meta.Features); hash != meta.FeaturesHash {
		return nil, fmt.Errorf("feature order hash mismatch for %s (metadata edited?)", riskType)
	}
	if version == "" && !meta.Active {
		return nil, fmt.Errorf("artifact %s for %s was never activated", meta.Version, riskType)
	}

	modelBytes, err := os.ReadFile(filepath.Join(r.dir, name(modelFile(riskType))))
	if err != nil {
		return nil, err
	}
	predictor, err := ml.DecodePredictor(modelBytes)
	if err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}

	artifact := &Artifact{Predictor: predictor, Meta: meta}

	preprocBytes, err := os.ReadFile(filepath.Join(r.dir, name(preprocessorFile(riskType))))
	if err == nil {
		transformer, err := ml.DecodeTransformer(preprocBytes)
		if err != nil {
			return nil, fmt.Errorf("preprocessor file: %w", err)
		}
		artifact.Preprocessor = transformer
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	return artifact, nil
}

// GetActive returns a snapshot reference; in-flight callers keep using it
// even if a swap happens underneath them.
func (r *Registry) GetActive(riskType types.RiskType) (*Artifact, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	artifact, ok := r.active[riskType]
	return artifact, ok
}

// SetActive swaps the active artifact to an already-known version.
func (r *Registry) SetActive(riskType types.RiskType, version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	artifact, ok := r.versions[riskType][version]
	if !ok {
		return fmt.Errorf("unknown version %q for %s", version, riskType)
	}
	r.active[riskType] = artifact
	return r.writeVersionInfoLocked()
}

// Save persists an artifact (temp file + rename, so readers never observe a
// partial write) and activates it when the training run met its thresholds.
// A versioned copy is always retained for inspection and rollback, but the
// unversioned files only ever track an activated model, so a rejected run
// cannot displace the serving one here or after a restart.
func (r *Registry) Save(artifact *Artifact) error {
	meta := &artifact.Meta
	if meta.Version == "" {
		meta.Version = NewVersion()
	}
	meta.FeaturesHash = utils.HashStrings(meta.Features)
	meta.Active = meta.MeetsThresholds

	modelBytes, err := ml.EncodePredictor(artifact.Predictor)
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	infoBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}

	files := map[string][]byte{
		modelFile(meta.RiskType): modelBytes,
		infoFile(meta.RiskType):  infoBytes,
	}
	if artifact.Preprocessor != nil {
		preprocBytes, err := ml.EncodeTransformer(artifact.Preprocessor)
		if err != nil {
			return fmt.Errorf("encode preprocessor: %w", err)
		}
		files[preprocessorFile(meta.RiskType)] = preprocBytes
	}

	for name, data := range files {
		if err := r.writeAtomic(versionedName(name, meta.Version), data); err != nil {
			return err
		}
		if meta.MeetsThresholds {
			if err := r.writeAtomic(name, data); err != nil {
				return err
			}
			r.pushToMirror(name, data)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rememberLocked(artifact)
	if meta.MeetsThresholds {
		r.active[meta.RiskType] = artifact
		if err := r.writeVersionInfoLocked(); err != nil {
			return err
		}
	} else {
		r.log.Warn().
			Str("risk_type", string(meta.RiskType)).
			Str("version", meta.Version).
			Msg("Artifact saved but below performance thresholds, not activated")
	}
	return nil
}

// IsAvailable reports whether a learned artifact is active for the risk
// type (every risk type when the argument is empty).
func (r *Registry) IsAvailable(riskType types.RiskType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if riskType == "" {
		for _, rt := range types.AllRiskTypes {
			if _, ok := r.active[rt]; !ok {
				return false
			}
		}
		return true
	}
	_, ok := r.active[riskType]
	return ok
}

func (r *Registry) ActiveVersions() map[types.RiskType]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[types.RiskType]string, len(r.active))
	for riskType, artifact := range r.active {
		out[riskType] = artifact.Meta.Version
	}
	return out
}

func (r *Registry) rememberLocked(artifact *Artifact) {
	riskType := artifact.Meta.RiskType
	if r.versions[riskType] == nil {
		r.versions[riskType] = make(map[string]*Artifact)
	}
	r.versions[riskType][artifact.Meta.Version] = artifact
}

func (r *Registry) writeVersionInfoLocked() error {
	info := make(map[string]string, len(r.active))
	for riskType, artifact := range r.active {
		info[string(riskType)] = artifact.Meta.Version
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return r.writeAtomic(versionInfoFile, data)
}

func (r *Registry) readVersionInfo() map[string]string {
	data, err := os.ReadFile(filepath.Join(r.dir, versionInfoFile))
	if err != nil {
		return nil
	}
	var info map[string]string
	if err := json.Unmarshal(data, &info); err != nil {
		r.log.Warn().Err(err).Msg("Unreadable version info file, ignoring it")
		return nil
	}
	return info
}

func (r *Registry) writeAtomic(name string, data []byte) error {
	path := filepath.Join(r.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (r *Registry) pullFromMirror() {
	if r.mirror == nil {
		return
	}
	names, err := r.mirror.List()
	if err != nil {
		r.log.Warn().Err(err).Msg("Artifact mirror unreachable, using local files only")
		return
	}
	for _, name := range names {
		local := filepath.Join(r.dir, name)
		if _, err := os.Stat(local); err == nil {
			continue
		}
		data, err := r.mirror.Pull(name)
		if err != nil {
			r.log.Warn().Err(err).Str("file", name).Msg("Failed to pull artifact file from mirror")
			continue
		}
		if err := r.writeAtomic(name, data); err != nil {
			r.log.Warn().Err(err).Str("file", name).Msg("Failed to store mirrored artifact file")
		}
	}
}

func (r *Registry) pushToMirror(name string, data []byte) {
	if r.mirror == nil {
		return
	}
	if err := r.mirror.Push(name, data); err != nil {
		r.log.Warn().Err(err).Str("file", name).Msg("Failed to push artifact file to mirror")
	}
}
