package scene

import (
	"mikanlink/pkg/mikan"
	"mikanlink/pkg/xform"
)

// AnchorComponent follows a named anchor. Its scene transform is the anchor's
// engine transform mapped through the scene's compositor-to-scene transform.
type AnchorComponent struct {
	Name string

	anchorID       mikan.AnchorID
	sceneTransform xform.Transform
	// OnMoved runs after the scene transform changes.
	OnMoved func(t xform.Transform)
}

// NewAnchorComponent creates an unbound component for the named anchor.
func NewAnchorComponent(name string) *AnchorComponent {
	return &AnchorComponent{
		Name:           name,
		anchorID:       mikan.InvalidAnchorID,
		sceneTransform: xform.Identity(),
	}
}

// AnchorID returns the bound anchor id, or mikan.InvalidAnchorID.
func (c *AnchorComponent) AnchorID() mikan.AnchorID { return c.anchorID }

// SceneTransform returns the last computed scene transform.
func (c *AnchorComponent) SceneTransform() xform.Transform { return c.sceneTransform }

// FetchAnchorInfo resolves the anchor id by name. It reports whether the
// anchor was found.
func (c *AnchorComponent) FetchAnchorInfo(s *Scene) bool {
	a, ok := s.AnchorByName(c.Name)
	if !ok {
		c.anchorID = mikan.InvalidAnchorID
		return false
	}
	c.anchorID = a.ID
	return true
}

// UpdateSceneTransform recomputes the scene transform. Unbound components
// keep their last transform.
func (c *AnchorComponent) UpdateSceneTransform(s *Scene) {
	a, ok := s.AnchorByID(c.anchorID)
	if !ok {
		return
	}
	c.sceneTransform = a.Transform.Mul(s.MikanToScene())
	if c.OnMoved != nil {
		c.OnMoved(c.sceneTransform)
	}
}
