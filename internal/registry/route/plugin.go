package route

import (
	"sort"
	"sync"

	"github.com/chirino/chatmem-service/internal/config"
	registrystore "github.com/chirino/chatmem-service/internal/registry/store"
	"github.com/gin-gonic/gin"
)

// Mount is what a route plugin gets to attach its handlers to.
type Mount struct {
	Router *gin.Engine
	Store  registrystore.ConversationStore
	Config *config.Config
	// Auth gates the conversation API; it passes everything through when no tokens are configured.
	Auth gin.HandlerFunc
}

// RouterLoader initializes routes on the mount's gin engine.
type RouterLoader func(m *Mount) error

// RouteType distinguishes which server a plugin's routes belong to.
type RouteType int

const (
	// RouteTypeMain registers routes on the main API server.
	RouteTypeMain RouteType = iota
	// RouteTypeManagement registers routes on the management server (health, metrics).
	// When no dedicated management port is configured, these are mounted on the main server.
	RouteTypeManagement
)

// Plugin represents a route plugin with an order for deterministic mount sequence.
type Plugin struct {
	Order  int
	Type   RouteType
	Loader RouterLoader
}

var (
	plugins  []Plugin
	sortOnce sync.Once
)

// Register adds a route plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

func sorted() []Plugin {
	sortOnce.Do(func() {
		sort.SliceStable(plugins, func(i, j int) bool { return plugins[i].Order < plugins[j].Order })
	})
	return plugins
}

func loadersOf(t RouteType) []RouterLoader {
	var loaders []RouterLoader
	for _, p := range sorted() {
		if p.Type == t {
			loaders = append(loaders, p.Loader)
		}
	}
	return loaders
}

// MainRouteLoaders returns loaders for RouteTypeMain plugins, sorted by order.
func MainRouteLoaders() []RouterLoader {
	return loadersOf(RouteTypeMain)
}

// ManagementRouteLoaders returns loaders for RouteTypeManagement plugins, sorted by order.
func ManagementRouteLoaders() []RouterLoader {
	return loadersOf(RouteTypeManagement)
}
