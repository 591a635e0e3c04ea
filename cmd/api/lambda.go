package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"

	"agentconsole/internal/core"
)

// lambdaHandler answers one API Gateway HTTP API (payload v2) event.
type lambdaHandler func(context.Context, events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error)

// newLambdaHandler bridges API Gateway events to h.
func newLambdaHandler(h http.Handler) lambdaHandler {
	return httpadapter.NewV2(h).ProxyWithContext
}

// runLambda serves the router through the API Gateway adapter.
func runLambda(srv *core.Server, logger *slog.Logger) error {
	logger.Info("starting in Lambda mode")
	lambda.StartWithOptions(
		newLambdaHandler(srv.Handler()),
		lambda.WithEnableSIGTERM(func() {
			if err := srv.Shutdown(context.Background()); err != nil {
				logger.Error("server resource shutdown error", "error", err)
			}
		}),
	)
	return nil
}
