package graphql

import (
	"errors"

	"LecturerVote/control"

	"github.com/graphql-go/graphql" // 导入graphql包用于创建GraphQL服务
)

var (
	errLoginRequired = errors.New("login required")
	errInternal      = errors.New("internal error")
)

// 只把参数错误原样返回给客户端，存储错误只说明失败
func publicError(err error) error {
	if errors.Is(err, control.ErrInvalidArgument) {
		return err
	}
	return errInternal
}

// 定义GraphQL中的讲师类型，字段名与 REST 接口返回的 json 保持一致
var lecturerType = graphql.NewObject(
	graphql.ObjectConfig{
		Name: "Lecturer",
		Fields: graphql.Fields{
			"courseSection": &graphql.Field{Type: graphql.String},
			"name":          &graphql.Field{Type: graphql.String},
			"votes":         &graphql.Field{Type: graphql.Int},
			"addedBy":       &graphql.Field{Type: graphql.String},
			"timestamp":     &graphql.Field{Type: graphql.Float}, // unix 毫秒，超出 Int 的 32 位范围
		},
	},
)

// 添加讲师和投票的返回类型
var resultType = graphql.NewObject(
	graphql.ObjectConfig{
		Name: "Result",
		Fields: graphql.Fields{
			"success": &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
			"message": &graphql.Field{Type: graphql.String},
		},
	},
)

func result(success bool, message string) map[string]interface{} {
	return map[string]interface{}{
		"success": success,
		"message": message,
	}
}

func stringArg(p graphql.ResolveParams, name string) string {
	v, _ := p.Args[name].(string)
	return v
}

func nonNullString() *graphql.ArgumentConfig {
	return &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)}
}

// NewGraphQLSchema 创建新的GraphQL schema
func NewGraphQLSchema(catalog *control.Catalog, ledger *control.Ledger) (graphql.Schema, error) {
	queryType := graphql.NewObject(
		graphql.ObjectConfig{
			Name: "Query",
			Fields: graphql.Fields{
				"courses": &graphql.Field{
					Type: graphql.NewList(graphql.String),
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						sections, err := catalog.ListSections(p.Context)
						if err != nil {
							// 与 REST 接口一样降级为默认课程
							return catalog.Defaults(), nil
						}
						return sections, nil
					},
				},
				"lecturers": &graphql.Field{
					Type: graphql.NewList(lecturerType),
					Args: graphql.FieldConfigArgument{"courseSection": nonNullString()},
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						lecturers, err := ledger.ListLecturers(p.Context, stringArg(p, "courseSection"))
						if err != nil {
							return nil, publicError(err)
						}
						return lecturers, nil
					},
				},
				"lecturer": &graphql.Field{
					Type: lecturerType,
					Args: graphql.FieldConfigArgument{
						"courseSection": nonNullString(),
						"name":          nonNullString(),
					},
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						l, err := ledger.GetLecturer(p.Context, stringArg(p, "courseSection"), stringArg(p, "name"))
						if errors.Is(err, control.ErrNotFound) {
							return nil, nil
						}
						if err != nil {
							return nil, publicError(err)
						}
						return l, nil
					},
				},
			},
		},
	)

	mutationType := graphql.NewObject(
		graphql.ObjectConfig{
			Name: "Mutation",
			Fields: graphql.Fields{
				"addLecturer": &graphql.Field{
					Type: resultType,
					Args: graphql.FieldConfigArgument{
						"courseSection": nonNullString(),
						"lecturerName":  nonNullString(),
					},
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						caller := control.CallerFrom(p.Context)
						if caller == "" {
							return nil, errLoginRequired
						}
						res, err := ledger.AddLecturer(p.Context, stringArg(p, "courseSection"), stringArg(p, "lecturerName"), caller)
						if err != nil {
							return nil, publicError(err)
						}
						return result(res.Created, res.Reason), nil
					},
				},
				"vote": &graphql.Field{
					Type: resultType,
					Args: graphql.FieldConfigArgument{
						"courseSection": nonNullString(),
						"lecturerName":  nonNullString(),
						"voteType":      nonNullString(),
					},
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						caller := control.CallerFrom(p.Context)
						if caller == "" {
							return nil, errLoginRequired
						}
						res, err := ledger.Vote(p.Context, stringArg(p, "courseSection"), stringArg(p, "lecturerName"), caller, stringArg(p, "voteType"))
						if err != nil {
							return nil, publicError(err)
						}
						return result(res.Accepted, res.Reason), nil
					},
				},
			},
		},
	)

	return graphql.NewSchema(
		graphql.SchemaConfig{
			Query:    queryType,
			Mutation: mutationType,
		},
	)
}
