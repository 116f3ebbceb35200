package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taxonomy_admin/internal/config"
	"taxonomy_admin/internal/handler"
	"taxonomy_admin/internal/middleware"
	"taxonomy_admin/internal/repository"
	"taxonomy_admin/internal/service"
	"taxonomy_admin/pkg/database"
	"taxonomy_admin/pkg/log"
	"taxonomy_admin/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	config.Init(*configPath)
	cfg := config.Conf

	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()

	db, err := database.OpenMySQL(cfg.Database.MySQL)
	if err != nil {
		log.Fatal("Failed to connect database", err)
		return
	}
	if err := database.RunMigrate(db); err != nil {
		log.Fatal("Failed to run migrations", err)
		return
	}

	// 依赖装配：repository -> service -> handler
	taxonomyRepo := repository.NewTaxonomyRepository(db)
	nodeRepo := repository.NewNodeRepository(db)

	taxonomyService := service.NewTaxonomyService(taxonomyRepo)
	nodeService := service.NewNodeService(nodeRepo, taxonomyRepo)
	treeService := service.NewTreeService(nodeRepo, service.TreeOptions{
		DefaultLanguageID: cfg.Taxonomy.DefaultLanguageID,
		DisabledLabel:     cfg.Taxonomy.DisabledLabel,
	})
	editorService := service.NewEditorService(nodeRepo, cfg.Taxonomy.AtomicCascade)

	jwtManager := token.NewJWTManager(
		cfg.JWT.Secret,
		time.Duration(cfg.JWT.AccessTokenExpireHours)*time.Hour,
		time.Duration(cfg.JWT.RefreshTokenExpireDays)*24*time.Hour,
	)

	authHandler := handler.NewAuthHandler(jwtManager)
	taxonomyHandler := handler.NewTaxonomyHandler(taxonomyService)
	nodeHandler := handler.NewNodeHandler(nodeService, treeService, editorService, handler.NodeOptions{
		DefaultLanguageID: cfg.Taxonomy.DefaultLanguageID,
		ExcludeDisabled:   cfg.Taxonomy.ExcludeDisabled,
	})

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	// 续期只校验 refresh token 本身，不走 AuthMiddleware
	r.POST("/api/v1/auth/refresh", authHandler.Refresh)

	api := r.Group("/api/v1/taxonomies")
	api.Use(middleware.AuthMiddleware(jwtManager))
	{
		api.GET("", taxonomyHandler.List)
		api.GET("/:tid", taxonomyHandler.Get)
		api.GET("/:tid/attributes", taxonomyHandler.ListAttributes)

		// 分类树定义的写操作只开放给分类树管理员
		adminOnly := api.Group("")
		adminOnly.Use(middleware.TaxonomyAdminMiddleware())
		{
			adminOnly.POST("", taxonomyHandler.Create)
			adminOnly.DELETE("/:tid", taxonomyHandler.Delete)
			adminOnly.POST("/:tid/attributes", taxonomyHandler.AddAttribute)
			adminOnly.POST("/:tid/repair-leaf-flags", nodeHandler.RepairLeafFlags)
		}

		nodes := api.Group("/:tid/nodes")
		{
			nodes.GET("", nodeHandler.Query)
			nodes.POST("", nodeHandler.Create)
			nodes.GET("/:nid", nodeHandler.Get)
			nodes.DELETE("/:nid", nodeHandler.Delete)
			nodes.PUT("/:nid/parent", nodeHandler.Reparent)
			nodes.PUT("/:nid/archive", nodeHandler.Archive)
			nodes.PUT("/:nid/selectable", nodeHandler.SetSelectable)
			nodes.PUT("/:nid/in-use", nodeHandler.MarkInUse)
			nodes.PUT("/:nid/attributes", nodeHandler.UpdateAttributes)
			nodes.GET("/:nid/ancestors", nodeHandler.Ancestors)
			nodes.GET("/:nid/elders", nodeHandler.Elders)
			nodes.GET("/:nid/descendants", nodeHandler.Descendants)
			nodes.GET("/:nid/editors", nodeHandler.Editors)
			nodes.PUT("/:nid/editors", nodeHandler.SetEditors)
			nodes.GET("/:nid/edges", nodeHandler.RelatedNodes)
			nodes.POST("/:nid/edges", nodeHandler.SetEdge)
			nodes.DELETE("/:nid/edges", nodeHandler.ClearEdges)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}
