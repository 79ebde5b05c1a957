package routes

import (
	"net/http"
	"strconv"

	"aggregator/aggregator/config"
	"aggregator/aggregator/controllers"
	"aggregator/aggregator/middlewares"
	"aggregator/aggregator/utils/types"

	"github.com/go-chi/chi/v5"
)

func AdminRoutes(ctrl *controllers.AdminController, cfg config.Config) chi.Router {
	r := chi.NewRouter()
	r.Use(middlewares.AuthMiddleware(cfg))

	r.Get("/", handleJSON(func(r *http.Request) (any, int, error) {
		admins, err := ctrl.List(r.Context())
		if err != nil {
			return nil, statusFor(err), err
		}
		return admins, http.StatusOK, nil
	}))

	r.Post("/", handleJSON(func(r *http.Request) (any, int, error) {
		var req types.CreateAdminRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, http.StatusBadRequest, err
		}
		admin, err := ctrl.Create(r.Context(), req)
		if err != nil {
			return nil, statusFor(err), err
		}
		return admin, http.StatusCreated, nil
	}))

	r.Put("/me/password", handleJSON(func(r *http.Request) (any, int, error) {
		id, ok := middlewares.UserIDFromContext(r.Context())
		if !ok {
			return nil, http.StatusUnauthorized, controllers.ErrInvalidCredentials
		}
		var req types.ChangePasswordRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, http.StatusBadRequest, err
		}
		if err := ctrl.ChangePassword(r.Context(), id, req); err != nil {
			return nil, statusFor(err), err
		}
		return nil, http.StatusNoContent, nil
	}))
	return r
}

func APIKeyRoutes(ctrl *controllers.APIKeyController, cfg config.Config) chi.Router {
	r := chi.NewRouter()
	r.Use(middlewares.AuthMiddleware(cfg))

	r.Get("/", handleJSON(func(r *http.Request) (any, int, error) {
		keys, err := ctrl.List(r.Context())
		if err != nil {
			return nil, statusFor(err), err
		}
		return keys, http.StatusOK, nil
	}))

	r.Post("/", handleJSON(func(r *http.Request) (any, int, error) {
		var req types.SaveAPIKeyRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, http.StatusBadRequest, err
		}
		view, err := ctrl.Save(r.Context(), req)
		if err != nil {
			return nil, statusFor(err), err
		}
		return view, http.StatusOK, nil
	}))
	return r
}

func KnowledgeRoutes(ctrl *controllers.KnowledgeController, cfg config.Config) chi.Router {
	r := chi.NewRouter()
	r.Use(middlewares.AuthMiddleware(cfg))

	r.Get("/", handleJSON(func(r *http.Request) (any, int, error) {
		files, err := ctrl.List(r.Context())
		if err != nil {
			return nil, statusFor(err), err
		}
		return files, http.StatusOK, nil
	}))

	r.Post("/", handleJSON(func(r *http.Request) (any, int, error) {
		var req types.UploadKnowledgeRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, http.StatusBadRequest, err
		}
		file, err := ctrl.Upload(r.Context(), req)
		if err != nil {
			return nil, statusFor(err), err
		}
		return file, http.StatusCreated, nil
	}))

	r.Delete("/{id}", handleJSON(func(r *http.Request) (any, int, error) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			return nil, http.StatusBadRequest, err
		}
		if err := ctrl.Delete(r.Context(), id); err != nil {
			return nil, statusFor(err), err
		}
		return nil, http.StatusNoContent, nil
	}))
	return r
}
