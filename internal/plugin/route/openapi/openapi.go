package openapi

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"sync"

	registryroute "github.com/chirino/chatmem-service/internal/registry/route"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gin-gonic/gin"
)

//go:embed openapi.yaml
var specYAML []byte

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

var (
	loadOnce sync.Once
	doc      *openapi3.T
	docJSON  []byte
	loadErr  error
)

// Document returns the parsed and validated API description.
func Document() (*openapi3.T, error) {
	loadOnce.Do(func() {
		loader := openapi3.NewLoader()
		doc, loadErr = loader.LoadFromData(specYAML)
		if loadErr != nil {
			loadErr = fmt.Errorf("openapi: load: %w", loadErr)
			return
		}
		if loadErr = doc.Validate(context.Background()); loadErr != nil {
			loadErr = fmt.Errorf("openapi: validate: %w", loadErr)
			return
		}
		docJSON, loadErr = doc.MarshalJSON()
	})
	return doc, loadErr
}

func init() {
	registryroute.Register(registryroute.Plugin{
		Order: 10,
		Type:  registryroute.RouteTypeMain,
		Loader: func(m *registryroute.Mount) error {
			if _, err := Document(); err != nil {
				return err
			}
			m.Router.GET("/openapi.json", func(c *gin.Context) {
				c.Data(http.StatusOK, "application/json", docJSON)
			})
			return nil
		},
	})
}
