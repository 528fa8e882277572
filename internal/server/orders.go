package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"gigline/internal/domain"
	"gigline/internal/engine"
	"gigline/internal/repo"
)

func registerOrders(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "orders-dashboard",
		Method:      http.MethodGet,
		Path:        "/orders/dashboard",
		Summary:     "Company orders dashboard",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
	}) (*struct {
		Body engine.DashboardSnapshot `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		snap, err := e.Dashboard(ctx, engine.DashboardOptions{
			OwnerID:  principal.OwnerID,
			Status:   input.Status,
			Escalate: canManageOrders(principal),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.DashboardSnapshot `json:"body"`
		}{Body: snap}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-order",
		Method:        http.MethodPost,
		Path:          "/orders",
		Summary:       "Create gig order",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateOrderRequest `json:"body"`
	}) (*struct {
		Body domain.GigOrder `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.OrderCreateOptions{
			ID:          input.Body.ID,
			OwnerID:     principal.OwnerID,
			VendorName:  input.Body.VendorName,
			ServiceName: input.Body.ServiceName,
			Status:      input.Body.Status,
			Amount:      input.Body.Amount,
			Currency:    input.Body.Currency,
			KickoffAt:   input.Body.KickoffAt,
			DueAt:       input.Body.DueAt,
			ActorID:     principal.ActorID,
		}
		for _, req := range input.Body.Requirements {
			opts.Requirements = append(opts.Requirements, engine.RequirementInput{Question: req.Question, Answer: req.Answer})
		}
		if input.Body.Scorecard != nil {
			opts.Scorecard = &engine.ScorecardInput{
				Quality:       input.Body.Scorecard.Quality,
				Communication: input.Body.Scorecard.Communication,
				Timeliness:    input.Body.Scorecard.Timeliness,
				Comment:       input.Body.Scorecard.Comment,
			}
		}
		o, err := e.CreateOrder(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.GigOrder `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-orders",
		Method:      http.MethodGet,
		Path:        "/orders",
		Summary:     "List gig orders",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		Limit  int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.GigOrder `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListGigOrders(ctx, repo.OrderFilters{
			OwnerID: principal.OwnerID,
			Status:  input.Status,
			Limit:   input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.GigOrder{}
		}
		return &struct {
			Body []domain.GigOrder `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-order",
		Method:      http.MethodGet,
		Path:        "/orders/{id}",
		Summary:     "Get gig order detail",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body engine.OrderDetail `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		detail, err := e.GetOrderDetail(ctx, principal.OwnerID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.OrderDetail `json:"body"`
		}{Body: detail}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-order",
		Method:      http.MethodPatch,
		Path:        "/orders/{id}",
		Summary:     "Update gig order",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body UpdateOrderRequest `json:"body"`
	}) (*struct {
		Body domain.GigOrder `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.UpdateGigOrder(ctx, engine.OrderUpdateOptions{
			OwnerID:         principal.OwnerID,
			OrderID:         input.ID,
			Status:          input.Body.Status,
			ProgressPercent: input.Body.ProgressPercent,
			Amount:          input.Body.Amount,
			DueAt:           input.Body.DueAt,
			ActorID:         principal.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.GigOrder `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-order",
		Method:      http.MethodDelete,
		Path:        "/orders/{id}",
		Summary:     "Delete gig order",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteOrder(ctx, principal.OwnerID, input.ID, principal.ActorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "post-escrow",
		Method:        http.MethodPost,
		Path:          "/orders/{id}/escrow",
		Summary:       "Post escrow checkpoint",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body EscrowRequest `json:"body"`
	}) (*struct {
		Body domain.EscrowCheckpoint `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.PostEscrowCheckpoint(ctx, engine.EscrowCreateOptions{
			OwnerID: principal.OwnerID,
			OrderID: input.ID,
			Label:   input.Body.Label,
			Amount:  input.Body.Amount,
			ActorID: principal.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.EscrowCheckpoint `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "release-escrow",
		Method:      http.MethodPost,
		Path:        "/orders/{id}/escrow/{checkpoint_id}/release",
		Summary:     "Release escrow checkpoint",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID           string `path:"id"`
		CheckpointID string `path:"checkpoint_id"`
	}) (*struct {
		Body domain.EscrowCheckpoint `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.ReleaseEscrowCheckpoint(ctx, principal.OwnerID, input.ID, input.CheckpointID, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.EscrowCheckpoint `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "post-order-message",
		Method:        http.MethodPost,
		Path:          "/orders/{id}/messages",
		Summary:       "Post order message",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body MessageRequest `json:"body"`
	}) (*struct {
		Body domain.OrderMessage `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.AddOrderMessage(ctx, principal.OwnerID, input.ID, principal.ActorID, input.Body.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.OrderMessage `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rate-order",
		Method:      http.MethodPut,
		Path:        "/orders/{id}/scorecard",
		Summary:     "Rate gig order",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body ScorecardRequest `json:"body"`
	}) (*struct {
		Body domain.OrderScorecard `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sc, err := e.RateOrder(ctx, principal.OwnerID, input.ID, engine.ScorecardInput{
			Quality:       input.Body.Quality,
			Communication: input.Body.Communication,
			Timeliness:    input.Body.Timeliness,
			Comment:       input.Body.Comment,
		}, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.OrderScorecard `json:"body"`
		}{Body: sc}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "post-order-activity",
		Method:        http.MethodPost,
		Path:          "/orders/{id}/activities",
		Summary:       "Append order timeline entry",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body ActivityRequest `json:"body"`
	}) (*struct {
		Body domain.OrderActivity `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.AddOrderActivity(ctx, principal.OwnerID, input.ID, input.Body.Kind, input.Body.Note, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.OrderActivity `json:"body"`
		}{Body: a}, nil
	})
}

func registerEscalations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-escalations",
		Method:      http.MethodGet,
		Path:        "/escalations",
		Summary:     "List SLA escalations",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		OrderID string `query:"order_id"`
		Status  string `query:"status"`
		Open    bool   `query:"open"`
		Limit   int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.OrderEscalation `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListEscalations(ctx, repo.EscalationFilters{
			OwnerID:  principal.OwnerID,
			OrderID:  input.OrderID,
			Status:   input.Status,
			OpenOnly: input.Open,
			Limit:    input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.OrderEscalation{}
		}
		return &struct {
			Body []domain.OrderEscalation `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-order-escalation",
		Method:      http.MethodGet,
		Path:        "/orders/{id}/escalation",
		Summary:     "Get open escalation for an order",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.OrderEscalation `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		esc, err := e.OpenOrderEscalation(ctx, principal.OwnerID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.OrderEscalation `json:"body"`
		}{Body: esc}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-order-escalations",
		Method:      http.MethodPost,
		Path:        "/orders/{id}/escalations/resolve",
		Summary:     "Resolve open escalations for an order",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string                   `path:"id"`
		Body ResolveEscalationRequest `json:"body"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		resolved, err := e.ResolveOrderEscalations(ctx, engine.ResolveEscalationOptions{
			OwnerID:      principal.OwnerID,
			OrderID:      input.ID,
			ResolvedByID: principal.ActorID,
			Resolution:   input.Body.Resolution,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{"resolved": resolved}}, nil
	})
}
