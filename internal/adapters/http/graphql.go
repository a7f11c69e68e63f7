package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/suntrack/fleetmap/internal/core/domain"
)

// buildSchema creates the GraphQL schema wired to the map engine.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	projectedPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ProjectedPoint",
		Fields: graphql.Fields{
			"x": &graphql.Field{Type: graphql.Float},
			"y": &graphql.Field{Type: graphql.Float},
		},
	})

	markerType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Marker",
		Fields: graphql.Fields{
			"id":            &graphql.Field{Type: graphql.Int},
			"geo":           &graphql.Field{Type: geoPointType},
			"projected":     &graphql.Field{Type: projectedPointType},
			"out_of_bounds": &graphql.Field{Type: graphql.Boolean},
			"title":         &graphql.Field{Type: graphql.String},
			"note":          &graphql.Field{Type: graphql.String},
			"category":      &graphql.Field{Type: graphql.String},
			"source":        &graphql.Field{Type: graphql.String},
			"affinity":      &graphql.Field{Type: graphql.String},
		},
	})

	regionStatsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "RegionStats",
		Fields: graphql.Fields{
			"count":             &graphql.Field{Type: graphql.Int},
			"total_capacity_kw": &graphql.Field{Type: graphql.Float},
		},
	})

	regionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Region",
		Fields: graphql.Fields{
			"id":       &graphql.Field{Type: graphql.String},
			"name":     &graphql.Field{Type: graphql.String},
			"centroid": &graphql.Field{Type: geoPointType},
			"stats":    &graphql.Field{Type: regionStatsType},
		},
	})

	viewportType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Viewport",
		Fields: graphql.Fields{
			"origin_x": &graphql.Field{Type: graphql.Float},
			"origin_y": &graphql.Field{Type: graphql.Float},
			"width":    &graphql.Field{Type: graphql.Float},
			"height":   &graphql.Field{Type: graphql.Float},
			"scale":    &graphql.Field{Type: graphql.Float},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"markers": &graphql.Field{
				Type:        graphql.NewList(markerType),
				Description: "List markers, optionally filtered by source",
				Args: graphql.FieldConfigArgument{
					"source": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					switch p.Args["source"].(string) {
					case string(domain.SourceCustom):
						return deps.Engine.Markers().CustomMarkers(), nil
					case string(domain.SourceFleet):
						return deps.Engine.Markers().FleetMarkers(), nil
					default:
						return deps.Engine.Markers().All(), nil
					}
				},
			},
			"marker": &graphql.Field{
				Type:        markerType,
				Description: "Get a marker by id",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(int)
					m, err := deps.Engine.Markers().Get(int64(id))
					if err != nil {
						return nil, err
					}
					return m, nil
				},
			},
			"markersNear": &graphql.Field{
				Type:        graphql.NewList(markerType),
				Description: "Markers within a radius of a point",
				Args: graphql.FieldConfigArgument{
					"lat":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"radius": &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: 5000.0},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					geo := domain.GeoPoint{
						Lat: p.Args["lat"].(float64),
						Lon: p.Args["lon"].(float64),
					}
					return deps.Engine.Markers().FindNear(geo, p.Args["radius"].(float64)), nil
				},
			},
			"regions": &graphql.Field{
				Type:        graphql.NewList(regionType),
				Description: "All regions with fleet aggregates",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Engine.Regions().Regions(p.Context), nil
				},
			},
			"region": &graphql.Field{
				Type:        regionType,
				Description: "Get a region by id or shape alias",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					region, ok := deps.Engine.Regions().Region(p.Args["id"].(string))
					if !ok {
						return nil, nil
					}
					return region, nil
				},
			},
			"classify": &graphql.Field{
				Type:        graphql.String,
				Description: "Region id for a geographic point",
				Args: graphql.FieldConfigArgument{
					"lat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					geo := domain.GeoPoint{
						Lat: p.Args["lat"].(float64),
						Lon: p.Args["lon"].(float64),
					}
					return deps.Engine.Regions().Classify(geo), nil
				},
			},
			"viewport": &graphql.Field{
				Type:        viewportType,
				Description: "Current camera state",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Engine.Viewport().Viewport(), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.Context(),
		})

		return c.JSON(result)
	}
}
