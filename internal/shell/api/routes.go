package api

import (
	"net/http"

	"github.com/fabricd/fabricd/internal/shell/api/openapi"
)

// newDocument describes the routes served by Handler.Routes.
func newDocument(version string) *openapi.Generator {
	gen := openapi.NewGenerator(
		openapi.WithTitle("fabricd API"),
		openapi.WithVersion(version),
		openapi.WithDescription("Container deployments on a remote fabric manager"),
	)

	gen.Register(
		openapi.Operation{Method: http.MethodGet, Path: "/health", ID: "health", Summary: "Liveness check", Tag: "System", Response: HealthResponse{}},

		openapi.Operation{Method: http.MethodPost, Path: "/api/v1/containers", ID: "createContainer", Summary: "Create a container", Tag: "Containers",
			Request: CreateContainerRequest{}, Status: http.StatusCreated, Response: ContainerResponse{}},
		openapi.Operation{Method: http.MethodGet, Path: "/api/v1/containers", ID: "listContainers", Summary: "List containers", Tag: "Containers",
			Query: []string{"limit", "offset"}, Response: ListContainersResponse{}},
		openapi.Operation{Method: http.MethodGet, Path: "/api/v1/containers/{id}", ID: "getContainer", Summary: "Get a container", Tag: "Containers",
			Response: ContainerResponse{}},
		openapi.Operation{Method: http.MethodDelete, Path: "/api/v1/containers/{id}", ID: "deleteContainer", Summary: "Delete an empty container", Tag: "Containers",
			Status: http.StatusNoContent},
		openapi.Operation{Method: http.MethodPost, Path: "/api/v1/containers/{id}/blueprint", ID: "deployBlueprint", Summary: "Upload a blueprint archive and deploy it", Tag: "Containers",
			RawBody: true, Query: []string{"register_app"}, Status: http.StatusAccepted, Response: SyncResponse{}},
		openapi.Operation{Method: http.MethodPut, Path: "/api/v1/containers/{id}/blueprint", ID: "redeployBlueprint", Summary: "Redeploy the active blueprint", Tag: "Containers",
			Query: []string{"register_app"}, Status: http.StatusAccepted, Response: SyncResponse{}},
		openapi.Operation{Method: http.MethodDelete, Path: "/api/v1/containers/{id}/blueprint", ID: "undeployBlueprint", Summary: "Undeploy the active blueprint", Tag: "Containers",
			Status: http.StatusAccepted, Response: SyncResponse{}},
		openapi.Operation{Method: http.MethodGet, Path: "/api/v1/containers/{id}/nodes", ID: "listContainerNodes", Summary: "List addressable nodes", Tag: "Containers",
			Query: []string{"raw"}, Response: []NodeResponse{}},

		openapi.Operation{Method: http.MethodGet, Path: "/api/v1/blueprints", ID: "listBlueprints", Summary: "List blueprints", Tag: "Blueprints",
			Query: []string{"limit", "offset"}, Response: ListBlueprintsResponse{}},
		openapi.Operation{Method: http.MethodGet, Path: "/api/v1/blueprints/{id}", ID: "getBlueprint", Summary: "Get a blueprint", Tag: "Blueprints",
			Response: BlueprintResponse{}},
		openapi.Operation{Method: http.MethodGet, Path: "/api/v1/blueprints/{id}/outputs", ID: "getBlueprintOutputs", Summary: "Get deployment outputs", Tag: "Blueprints",
			Response: map[string]OutputResponse{}},

		openapi.Operation{Method: http.MethodPost, Path: "/api/v1/inputs", ID: "createInput", Summary: "Create an input", Tag: "Inputs",
			Request: CreateInputRequest{}, Status: http.StatusCreated, Response: InputResponse{}},
		openapi.Operation{Method: http.MethodGet, Path: "/api/v1/inputs", ID: "listInputs", Summary: "List inputs", Tag: "Inputs",
			Response: ListInputsResponse{}},
		openapi.Operation{Method: http.MethodGet, Path: "/api/v1/inputs/{key}", ID: "getInput", Summary: "Get an input", Tag: "Inputs",
			Response: InputResponse{}},
		openapi.Operation{Method: http.MethodPatch, Path: "/api/v1/inputs/{key}", ID: "updateInput", Summary: "Update an input", Tag: "Inputs",
			Request: UpdateInputRequest{}, Response: InputResponse{}},
		openapi.Operation{Method: http.MethodDelete, Path: "/api/v1/inputs/{key}", ID: "deleteInput", Summary: "Delete an input", Tag: "Inputs",
			Status: http.StatusNoContent},
	)
	return gen
}
