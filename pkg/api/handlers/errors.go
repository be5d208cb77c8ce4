package handlers

import (
	"errors"
	"net/http"

	"pairdb/pkg/models"
	"pairdb/pkg/utils"
)

// writeServiceError maps service-layer sentinel errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrUnauthorized):
		utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, models.ErrValidation):
		utils.JSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		utils.JSONError(w, http.StatusNotFound, "not found")
	default:
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
	}
}
