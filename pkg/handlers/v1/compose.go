package v1

import (
	"fmt"
	"io"
	"net/http"

	"github.com/dkhoanguyen/playground/api"
	"github.com/dkhoanguyen/playground/pkg/compose"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	MaxComposeSize = 1 << 20
	// uploadDir names projects that declare no name.
	uploadDir = "upload"
)

type ComposeIssue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

type ComposeSummary struct {
	Name     string   `json:"name"`
	Services []string `json:"services"`
	Volumes  []string `json:"volumes"`
}

func noVariables(string) (string, bool) {
	return "", false
}

// MakeComposeValidate checks a compose file posted as the request body.
// Variables resolve to their defaults; the server environment is never used.
// The summary lists services in start order.
func MakeComposeValidate(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxComposeSize))
		if err != nil {
			_ = c.Error(api.Errorf(http.StatusRequestEntityTooLarge, "compose file exceeds %d bytes", MaxComposeSize))
			return
		}

		project, err := compose.Parse(data, uploadDir, compose.LoadOptions{
			ProjectName: c.Query("project"),
			Lookup:      noVariables,
		}, logger)
		if err != nil {
			_ = c.Error(api.NewError(http.StatusBadRequest, err.Error()))
			return
		}

		if err := compose.Validate(project); err != nil {
			issues := []ComposeIssue{}
			for _, issue := range compose.Issues(err) {
				issues = append(issues, ComposeIssue{Path: issue.Path, Message: issue.Message})
			}
			logger.Info(fmt.Sprintf("Rejected compose file %s with %d issues", project.Name, len(issues)))
			c.JSON(http.StatusUnprocessableEntity, api.Response{Message: "Invalid compose file", Data: issues})
			return
		}

		ordered, err := compose.Order(project)
		if err != nil {
			_ = c.Error(err)
			return
		}
		summary := ComposeSummary{Name: project.Name, Volumes: project.VolumeNames()}
		for _, service := range ordered {
			summary.Services = append(summary.Services, service.Name)
		}
		c.JSON(http.StatusOK, api.Success(summary))
	}
}
