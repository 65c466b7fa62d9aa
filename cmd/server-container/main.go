package main

import (
	"context"

	"github.com/robsonalexmmf/contact-pilot-system-sub002/app"
	"github.com/robsonalexmmf/contact-pilot-system-sub002/app/config"
	"github.com/robsonalexmmf/contact-pilot-system-sub002/logger"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var ginLambda *ginadapter.GinLambda

// init runs once per Lambda container (cold start)
func init() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}
	log := logger.New(logger.ForEnvironment("lambda", cfg.Log.Level))
	gin.SetMode(gin.ReleaseMode)

	// Connections stay open for the container's lifetime.
	deps, _, err := app.Bootstrap(context.Background(), cfg, log)
	if err != nil {
		log.Fatal("failed to initialize dependencies", zap.Error(err))
	}

	ginLambda = ginadapter.New(app.NewRouter(deps))
}

// Handler is the Lambda entrypoint for API Gateway REST/HTTP API (proxy integration)
func Handler(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return ginLambda.ProxyWithContext(ctx, req)
}

func main() {
	lambda.Start(Handler)
}
