package config

// Persistent state keys (Registry)
const (
	KeyMikanProvider = "mikan_provider"
	KeyOriginAnchor  = "scene_origin_anchor"
	KeySceneScale    = "scene_scale"
)
