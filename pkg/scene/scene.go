// Package scene keeps the compositor's spatial anchors in engine space and
// derives the transform that maps compositor space into the host scene.
package scene

import (
	"cmp"
	"context"
	"log/slog"
	"math"
	"slices"

	"github.com/go-gl/mathgl/mgl64"

	"mikanlink/pkg/logging"
	"mikanlink/pkg/mikan"
	"mikanlink/pkg/store"
	"mikanlink/pkg/xform"
)

// MinSceneScale is the smallest accepted scene scale.
const MinSceneScale = 0.001

// Source is the part of the compositor client the scene queries.
type Source interface {
	GetSpatialAnchorList(ctx context.Context) ([]mikan.AnchorID, error)
	GetSpatialAnchorInfo(ctx context.Context, id mikan.AnchorID) (mikan.SpatialAnchorInfo, error)
	GetVideoSourceIntrinsics(ctx context.Context) (mikan.VideoSourceIntrinsics, error)
	GetVideoSourceAttachment(ctx context.Context) (mikan.VideoSourceAttachment, error)
}

// Camera is the scene camera driven by video frames.
type Camera interface {
	SetTransform(t xform.Transform)
	HandleIntrinsics(intr mikan.VideoSourceIntrinsics)
	CaptureFrame(ctx context.Context, frame uint64)
}

// AnchorInfo is one anchor with its transform in engine space.
type AnchorInfo struct {
	ID        mikan.AnchorID  `json:"id"`
	Name      string          `json:"name"`
	Transform xform.Transform `json:"transform"`
}

// Options configures a Scene.
type Options struct {
	OriginAnchor  string
	Scale         float64
	MetersToUnits float64
}

// Scene is owned by the tick goroutine and is not safe for concurrent use.
type Scene struct {
	source        Source
	camera        Camera
	snapshots     store.AnchorStore
	logger        *slog.Logger
	metersToUnits float64

	anchors      map[mikan.AnchorID]*AnchorInfo
	originName   string
	scale        float64
	mikanToScene xform.Transform
	attachment   *mikan.VideoSourceAttachment
	components   []*AnchorComponent
}

// New creates an empty scene. camera and snapshots may be nil.
func New(source Source, camera Camera, snapshots store.AnchorStore, opts Options) *Scene {
	if opts.MetersToUnits <= 0 {
		opts.MetersToUnits = 1
	}
	s := &Scene{
		source:        source,
		camera:        camera,
		snapshots:     snapshots,
		logger:        slog.Default().With("component", "scene"),
		metersToUnits: opts.MetersToUnits,
		anchors:       make(map[mikan.AnchorID]*AnchorInfo),
		originName:    opts.OriginAnchor,
		scale:         clampScale(opts.Scale),
	}
	s.RecomputeMikanToScene()
	return s
}

func clampScale(v float64) float64 {
	if math.IsNaN(v) {
		return 1
	}
	return max(v, MinSceneScale)
}

// MikanToScene returns the compositor-to-scene transform.
func (s *Scene) MikanToScene() xform.Transform { return s.mikanToScene }

// SceneScale returns the uniform scene scale.
func (s *Scene) SceneScale() float64 { return s.scale }

// OriginAnchorName returns the name of the anchor used as scene origin.
func (s *Scene) OriginAnchorName() string { return s.originName }

// MetersToUnits returns the scene units per meter.
func (s *Scene) MetersToUnits() float64 { return s.metersToUnits }

// Attachment returns the last queried camera attachment, if any.
func (s *Scene) Attachment() (mikan.VideoSourceAttachment, bool) {
	if s.attachment == nil {
		return mikan.VideoSourceAttachment{}, false
	}
	return *s.attachment, true
}

// SetSceneScale sets the uniform scale, floored at MinSceneScale.
func (s *Scene) SetSceneScale(v float64) {
	s.scale = clampScale(v)
	s.RecomputeMikanToScene()
	s.updateComponents()
}

// SetOriginAnchorName selects the anchor used as scene origin. An empty name
// or one that matches no anchor leaves a pure scale.
func (s *Scene) SetOriginAnchorName(name string) {
	s.originName = name
	s.RecomputeMikanToScene()
	s.updateComponents()
}

// RecomputeMikanToScene rebuilds the compositor-to-scene transform from the
// origin anchor and the scene scale.
func (s *Scene) RecomputeMikanToScene() {
	scale := xform.Uniform(s.scale)
	if origin, ok := s.AnchorByName(s.originName); ok {
		s.mikanToScene = origin.Transform.Inverse().Mul(scale)
		return
	}
	s.mikanToScene = scale
}

// AnchorByID looks up an anchor in the current table.
func (s *Scene) AnchorByID(id mikan.AnchorID) (AnchorInfo, bool) {
	a, ok := s.anchors[id]
	if !ok {
		return AnchorInfo{}, false
	}
	return *a, true
}

// AnchorByName returns the first anchor with the given name. Empty names never
// match.
func (s *Scene) AnchorByName(name string) (AnchorInfo, bool) {
	if name == "" {
		return AnchorInfo{}, false
	}
	var found *AnchorInfo
	for _, a := range s.anchors {
		// Lowest id wins when names collide.
		if a.Name == name && (found == nil || a.ID < found.ID) {
			found = a
		}
	}
	if found == nil {
		return AnchorInfo{}, false
	}
	return *found, true
}

// Anchors returns the anchor table ordered by id.
func (s *Scene) Anchors() []AnchorInfo {
	out := make([]AnchorInfo, 0, len(s.anchors))
	for _, a := range s.anchors {
		out = append(out, *a)
	}
	slices.SortFunc(out, func(a, b AnchorInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// HandleConnected refreshes everything the compositor owns.
func (s *Scene) HandleConnected(ctx context.Context) {
	s.HandleCameraIntrinsicsChanged(ctx)
	s.HandleCameraAttachmentChanged(ctx)
	s.HandleAnchorListChanged(ctx)
}

// HandleAnchorListChanged rebuilds the anchor table from the compositor. If
// the list cannot be fetched the table is left empty.
func (s *Scene) HandleAnchorListChanged(ctx context.Context) {
	next := make(map[mikan.AnchorID]*AnchorInfo)

	ids, err := s.source.GetSpatialAnchorList(ctx)
	if err != nil {
		s.logger.Warn("Failed to fetch anchor list", "error", err)
	}
	for _, id := range ids {
		info, err := s.source.GetSpatialAnchorInfo(ctx, id)
		if err != nil {
			s.logger.Debug("Skipping anchor", "id", id, "error", err)
			continue
		}
		next[id] = &AnchorInfo{
			ID:        id,
			Name:      info.Name,
			Transform: xform.ToEngineSpace(info.Transform, s.metersToUnits),
		}
	}
	s.anchors = next
	s.logger.Debug("Anchor table rebuilt", "count", len(next))

	s.RecomputeMikanToScene()
	for _, c := range s.components {
		c.FetchAnchorInfo(s)
		c.UpdateSceneTransform(s)
	}
	s.saveSnapshots(ctx)
}

// HandleAnchorPoseChanged updates one anchor. Unknown ids are ignored.
func (s *Scene) HandleAnchorPoseChanged(ctx context.Context, id mikan.AnchorID, t xform.Transform) {
	a, ok := s.anchors[id]
	if !ok {
		logging.Trace(s.logger, "Pose for unknown anchor", "id", id)
		return
	}
	a.Transform = xform.ToEngineSpace(t, s.metersToUnits)

	if origin, ok := s.AnchorByName(s.originName); ok && origin.ID == id {
		s.RecomputeMikanToScene()
		s.updateComponents()
		return
	}
	for _, c := range s.components {
		if c.anchorID == id {
			c.UpdateSceneTransform(s)
		}
	}
}

// HandleNewVideoFrame moves the camera to the frame's pose and captures it.
func (s *Scene) HandleNewVideoFrame(ctx context.Context, frame uint64, pose mikan.CameraPose) {
	if s.camera == nil {
		return
	}
	s.camera.SetTransform(s.CameraTransform(pose))
	s.camera.CaptureFrame(ctx, frame)
}

// CameraTransform converts a compositor camera pose into scene space.
func (s *Scene) CameraTransform(pose mikan.CameraPose) xform.Transform {
	local := xform.Transform{
		Position: xform.PositionToEngine(pose.Position, s.metersToUnits),
		Rotation: xform.CameraRotation(xform.VectorToEngine(pose.Forward), xform.VectorToEngine(pose.Up)),
		Scale:    mgl64.Vec3{1, 1, 1},
	}
	return local.Mul(s.mikanToScene)
}

// HandleCameraIntrinsicsChanged pushes new intrinsics to the camera.
func (s *Scene) HandleCameraIntrinsicsChanged(ctx context.Context) {
	if s.camera == nil {
		return
	}
	intr, err := s.source.GetVideoSourceIntrinsics(ctx)
	if err != nil {
		s.logger.Debug("Failed to fetch intrinsics", "error", err)
		return
	}
	s.camera.HandleIntrinsics(intr)
}

// HandleCameraAttachmentChanged re-queries the attachment and recomputes the
// scene transform on success.
func (s *Scene) HandleCameraAttachmentChanged(ctx context.Context) {
	att, err := s.source.GetVideoSourceAttachment(ctx)
	if err != nil {
		s.logger.Debug("Failed to fetch camera attachment", "error", err)
		return
	}
	s.attachment = &att
	s.RecomputeMikanToScene()
	s.updateComponents()
}

// AddComponent binds a component to the scene and resolves it immediately.
func (s *Scene) AddComponent(c *AnchorComponent) {
	if slices.Contains(s.components, c) {
		return
	}
	s.components = append(s.components, c)
	c.FetchAnchorInfo(s)
	c.UpdateSceneTransform(s)
}

// RemoveComponent unbinds a component.
func (s *Scene) RemoveComponent(c *AnchorComponent) {
	s.components = slices.DeleteFunc(s.components, func(x *AnchorComponent) bool { return x == c })
}

// Components returns the bound components.
func (s *Scene) Components() []*AnchorComponent {
	return slices.Clone(s.components)
}

func (s *Scene) updateComponents() {
	for _, c := range s.components {
		c.UpdateSceneTransform(s)
	}
}

func (s *Scene) saveSnapshots(ctx context.Context) {
	if s.snapshots == nil || len(s.anchors) == 0 {
		return
	}
	anchors := s.Anchors()
	snaps := make([]store.AnchorSnapshot, 0, len(anchors))
	seen := make(map[string]bool, len(anchors))
	for _, a := range anchors {
		// Ascending ids: the first of a duplicated name is the one AnchorByName returns.
		if a.Name == "" || seen[a.Name] {
			continue
		}
		seen[a.Name] = true
		snaps = append(snaps, store.AnchorSnapshot{Name: a.Name, ID: a.ID, Transform: a.Transform})
	}
	if err := s.snapshots.SaveAnchors(ctx, snaps); err != nil {
		s.logger.Warn("Failed to save anchor snapshots", "error", err)
	}
}
