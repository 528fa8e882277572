package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"gigline/internal/domain"
	"gigline/internal/engine"
)

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProject(ctx, engine.ProjectCreateOptions{
			ID:          input.Body.ID,
			OwnerID:     principal.OwnerID,
			Name:        input.Body.Name,
			Description: input.Body.Description,
			Status:      input.Body.Status,
			ActorID:     principal.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListProjects(ctx, principal.OwnerID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Project{}
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{id}",
		Summary:     "Update project",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateProject(ctx, engine.ProjectUpdateOptions{
			OwnerID:     principal.OwnerID,
			ProjectID:   input.ID,
			Status:      input.Body.Status,
			Description: input.Body.Description,
			ActorID:     principal.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})
}

func registerWorkspace(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "workspace-management",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/workspace/management",
		Summary:     "Workspace management snapshot",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body engine.WorkspaceView `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		view, err := e.GetWorkspaceSnapshot(ctx, principal.OwnerID, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.WorkspaceView `json:"body"`
		}{Body: view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "workspace-summary",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/workspace/management/summary",
		Summary:     "Workspace summary",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body struct {
			Summary  engine.WorkspaceSummary  `json:"summary"`
			Timeline engine.WorkspaceTimeline `json:"timeline"`
		} `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		view, err := e.GetWorkspaceSnapshot(ctx, principal.OwnerID, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Summary  engine.WorkspaceSummary  `json:"summary"`
				Timeline engine.WorkspaceTimeline `json:"timeline"`
			} `json:"body"`
		}{}
		out.Body.Summary = view.Summary
		out.Body.Timeline = view.Timeline
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-workspace-summary",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/workspace/management/summary",
		Summary:     "Update workspace summary",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                        `path:"project_id"`
		Body      UpdateWorkspaceSummaryRequest `json:"body"`
	}) (*struct {
		Body domain.ProjectWorkspace `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ws, err := e.UpdateWorkspaceSummary(ctx, engine.WorkspaceSummaryUpdateOptions{
			OwnerID:         principal.OwnerID,
			ProjectID:       input.ProjectID,
			Status:          input.Body.Status,
			ProgressPercent: input.Body.ProgressPercent,
			RiskLevel:       input.Body.RiskLevel,
			Notes:           input.Body.Notes,
			ActorID:         principal.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ProjectWorkspace `json:"body"`
		}{Body: ws}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "workspace-integrations",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/workspace/management/integrations",
		Summary:     "List project integrations",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []domain.ProjectIntegration `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListProjectIntegrations(ctx, principal.OwnerID, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.ProjectIntegration{}
		}
		return &struct {
			Body []domain.ProjectIntegration `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-workspace-integration",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/workspace/management/integrations/{provider}",
		Summary:     "Update project integration",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string                   `path:"project_id"`
		Provider  string                   `path:"provider"`
		Body      IntegrationUpdateRequest `json:"body"`
	}) (*struct {
		Body domain.ProjectIntegration `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in, err := e.UpdateProjectIntegration(ctx, principal.OwnerID, input.ProjectID, input.Provider, input.Body.Status, input.Body.ConfigJSON, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ProjectIntegration `json:"body"`
		}{Body: in}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-workspace-entities",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/workspace/management/{entity}",
		Summary:     "List workspace entity records",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Entity    string `path:"entity"`
	}) (*struct {
		Body []domain.WorkspaceRecord `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListWorkspaceEntities(ctx, principal.OwnerID, input.ProjectID, input.Entity)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.WorkspaceRecord{}
		}
		return &struct {
			Body []domain.WorkspaceRecord `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-workspace-entity",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/workspace/management/{entity}",
		Summary:       "Create workspace entity record",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string         `path:"project_id"`
		Entity    string         `path:"entity"`
		Body      map[string]any `json:"body"`
	}) (*struct {
		Body domain.WorkspaceRecord `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.MutateWorkspaceEntity(ctx, engine.WorkspaceMutateOptions{
			OwnerID:   principal.OwnerID,
			ProjectID: input.ProjectID,
			Entity:    input.Entity,
			Payload:   input.Body,
			ActorID:   principal.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkspaceRecord `json:"body"`
		}{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-workspace-entity",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/workspace/management/{entity}/{record_id}",
		Summary:     "Update workspace entity record",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string         `path:"project_id"`
		Entity    string         `path:"entity"`
		RecordID  string         `path:"record_id"`
		Body      map[string]any `json:"body"`
	}) (*struct {
		Body domain.WorkspaceRecord `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.MutateWorkspaceEntity(ctx, engine.WorkspaceMutateOptions{
			OwnerID:   principal.OwnerID,
			ProjectID: input.ProjectID,
			Entity:    input.Entity,
			Payload:   input.Body,
			RecordID:  input.RecordID,
			IsUpdate:  true,
			ActorID:   principal.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkspaceRecord `json:"body"`
		}{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-workspace-entity",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/workspace/management/{entity}/{record_id}",
		Summary:     "Delete workspace entity record",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Entity    string `path:"entity"`
		RecordID  string `path:"record_id"`
	}) (*struct{}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		_, err := e.MutateWorkspaceEntity(ctx, engine.WorkspaceMutateOptions{
			OwnerID:   principal.OwnerID,
			ProjectID: input.ProjectID,
			Entity:    input.Entity,
			RecordID:  input.RecordID,
			IsDelete:  true,
			ActorID:   principal.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
