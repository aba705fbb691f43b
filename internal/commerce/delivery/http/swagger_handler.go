package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterSwaggerDocs registers Swagger documentation routes
// @Summary Swagger documentation
// @Tags Swagger
// @Success 200 {string} string "Swagger UI"
// @Router /swagger/ [get]
func RegisterSwaggerDocs(router *mux.Router, swaggerHandler http.Handler) {
	router.PathPrefix("/swagger/").Handler(swaggerHandler)
}

// DeleteProduct godoc
// @Summary Delete a product
// @Description Soft delete; stock moves are kept
// @Tags Menu
// @Security BearerAuth
// @Produce json
// @Param id path int true "Product ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /api/products/{id} [delete]
func (h *LedgerHandler) DeleteProductDoc() {}

// DeleteIngredient godoc
// @Summary Delete an ingredient
// @Tags Menu
// @Security BearerAuth
// @Produce json
// @Param id path int true "Ingredient ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /api/ingredients/{id} [delete]
func (h *LedgerHandler) DeleteIngredientDoc() {}
