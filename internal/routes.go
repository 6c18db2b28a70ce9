package internal

import (
	"net/http"

	"tokcache/internal/controllers"
	"tokcache/internal/providers"
)

func InitRoutes(apiController *controllers.ApiController) providers.RouterProviderInterface {
	routers := providers.NewRouterProvider()

	routers.Post("/refresh", http.HandlerFunc(apiController.Refresh))
	routers.Get("/videos", http.HandlerFunc(apiController.GetVideos))

	routers.Post("/hashtags/search", http.HandlerFunc(apiController.SearchHashtag))
	routers.Get("/hashtags/videos", http.HandlerFunc(apiController.GetHashtagVideos))
	routers.Get("/hashtags/history", http.HandlerFunc(apiController.GetSearchHistory))

	routers.Get("/profile", http.HandlerFunc(apiController.GetProfile))
	routers.Put("/profile/account", http.HandlerFunc(apiController.LinkAccount))
	routers.Put("/settings/fetching", http.HandlerFunc(apiController.SetFetching))
	return routers
}
