package api

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/fyerfyer/doc-pipeline/api/handler"
	"github.com/fyerfyer/doc-pipeline/api/middleware"
)

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件
func SetupRouter(
	fileHandler *handler.FileHandler,
	nodeHandler *handler.NodeHandler,
	taskHandler *handler.TaskHandler,
	allowOrigins []string,
) *gin.Engine {
	router := gin.New()

	router.Use(Cors(allowOrigins))
	router.Use(middleware.SetTraceID())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorMiddleware())

	// 在调试模式下记录请求体
	if gin.Mode() == gin.DebugMode {
		router.Use(middleware.RequestBodyLog())
	}

	api := router.Group("/api")
	{
		// 文件管理API
		files := api.Group("/files")
		{
			files.POST("", fileHandler.UploadFile)
			files.GET("", fileHandler.ListFiles)
			files.GET("/:id", fileHandler.GetFile)
			files.GET("/:id/content", fileHandler.DownloadFile)
			files.GET("/:id/tasks", taskHandler.GetItemTasks)
			files.DELETE("/:id", fileHandler.DeleteFile)
		}

		// 节点API
		nodes := api.Group("/nodes")
		{
			nodes.GET("", nodeHandler.ListNodes)
			nodes.POST("/:node/run", nodeHandler.RunNode)
			nodes.POST("/:node/enqueue", nodeHandler.EnqueueNode)
		}

		// 任务API
		tasks := api.Group("/tasks")
		{
			tasks.GET("/:id", taskHandler.GetTaskStatus)
			tasks.DELETE("/:id", taskHandler.DeleteTask)
		}

		// 健康检查API
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status": "ok",
			})
		})
	}

	return router
}

// Cors 跨域资源共享中间件
// allowOrigins为空或包含"*"时允许所有来源
func Cors(allowOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Content-Length", "Accept", "Authorization", middleware.TraceIDHeader},
		ExposeHeaders: []string{middleware.TraceIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(allowOrigins) == 0 || slices.Contains(allowOrigins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowOrigins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}
