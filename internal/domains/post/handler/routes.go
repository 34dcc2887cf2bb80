package handler

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the post endpoints under rg.
func (h *PostHandler) RegisterRoutes(rg *gin.RouterGroup) {
	posts := rg.Group("/posts")
	{
		posts.GET("", h.ListPosts)
		posts.POST("", h.CreatePost)
		posts.GET("/search", h.SearchPosts)
		posts.GET("/top", h.TopPosts)
		posts.POST("/seed", h.SeedPosts)
		posts.GET("/:id", h.GetPost)
		posts.PUT("/:id", h.UpdatePost)
		posts.DELETE("/:id", h.DeletePost)
		posts.POST("/:id/like", h.LikePost)
		posts.POST("/:id/comments", h.AddComment)
	}
}
