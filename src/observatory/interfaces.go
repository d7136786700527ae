package observatory

import (
	"context"

	"github.com/gin-gonic/gin"
)

// ObservatoryService 定义观测台HTTP服务接口
type ObservatoryService interface {
	// 将路由注册到 engine 与 apiGroup
	Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error
}
