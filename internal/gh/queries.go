package gh

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/h0rv/boardsync/internal/domain"
	"github.com/h0rv/boardsync/internal/pager"
	"github.com/machinebox/graphql"
)

// SinceLayout is the timestamp format sent for the issues filterBy.since argument.
const SinceLayout = "2006-01-02T15:04:05Z"

// pageInfo mirrors the GraphQL PageInfo object.
type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

// ResolveProject looks up the node ID of an organization's project by number.
func (c *Client) ResolveProject(ctx context.Context, org string, number int) (domain.Project, error) {
	req := graphql.NewRequest(`
		query($org: String!, $number: Int!) {
			organization(login: $org) {
				projectV2(number: $number) {
					id
					number
					title
				}
			}
		}
	`)
	req.Var("org", org)
	req.Var("number", number)

	var resp struct {
		Organization *struct {
			ProjectV2 *struct {
				ID     string `json:"id"`
				Number int    `json:"number"`
				Title  string `json:"title"`
			} `json:"projectV2"`
		} `json:"organization"`
	}

	resource := fmt.Sprintf("project %s/%d", org, number)
	if err := c.makeRequest(ctx, req, &resp, resource); err != nil {
		return domain.Project{}, fmt.Errorf("failed to resolve project: %w", err)
	}

	if resp.Organization == nil {
		return domain.Project{}, NewSchemaError(resource, fmt.Sprintf("organization '%s' not found", org))
	}
	if resp.Organization.ProjectV2 == nil || resp.Organization.ProjectV2.ID == "" {
		return domain.Project{}, NewSchemaError(resource, "project not found")
	}

	p := resp.Organization.ProjectV2
	return domain.Project{
		ID:     p.ID,
		Number: p.Number,
		Title:  p.Title,
		Owner:  org,
	}, nil
}

// GetProjectFields fetches all fields for a project, including options for SINGLE_SELECT fields.
// Options are returned in their configured order from GitHub (the order shown in the project UI).
func (c *Client) GetProjectFields(ctx context.Context, projectID string) ([]domain.FieldDef, error) {
	req := graphql.NewRequest(`
		query($projectId: ID!) {
			node(id: $projectId) {
				... on ProjectV2 {
					fields(first: 50) {
						nodes {
							... on ProjectV2Field {
								id
								name
								dataType
							}
							... on ProjectV2SingleSelectField {
								id
								name
								dataType
								options {
									id
									name
								}
							}
							... on ProjectV2IterationField {
								id
								name
								dataType
							}
						}
					}
				}
			}
		}
	`)
	req.Var("projectId", projectID)

	var resp struct {
		Node *struct {
			Fields *struct {
				Nodes []fieldNode `json:"nodes"`
			} `json:"fields"`
		} `json:"node"`
	}

	resource := "project " + projectID
	if err := c.makeRequest(ctx, req, &resp, resource); err != nil {
		return nil, fmt.Errorf("failed to get project fields: %w", err)
	}
	if resp.Node == nil || resp.Node.Fields == nil {
		return nil, NewSchemaError(resource, "response has no project fields")
	}

	fields := make([]domain.FieldDef, 0, len(resp.Node.Fields.Nodes))
	for _, node := range resp.Node.Fields.Nodes {
		fields = append(fields, node.toDomain())
	}
	return fields, nil
}

// fieldNode is the common shape of every ProjectV2 field type.
type fieldNode struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	DataType string `json:"dataType"`
	Options  []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"options"`
}

func (n fieldNode) toDomain() domain.FieldDef {
	field := domain.FieldDef{
		ID:   n.ID,
		Name: n.Name,
		Type: n.DataType,
	}

	// Only SINGLE_SELECT fields have options
	if n.DataType == domain.FieldTypeSingleSelect && len(n.Options) > 0 {
		field.Options = make([]domain.Option, 0, len(n.Options))
		for _, opt := range n.Options {
			field.Options = append(field.Options, domain.Option{ID: opt.ID, Name: opt.Name})
		}
	}
	return field
}

const projectItemsQuery = `
	query($projectId: ID!, $first: Int!, $after: String) {
		node(id: $projectId) {
			... on ProjectV2 {
				items(first: $first, after: $after) {
					pageInfo {
						hasNextPage
						endCursor
					}
					nodes {
						id
						type
						isArchived
						updatedAt
						fieldValues(first: 100) {
							nodes {
								__typename
								... on ProjectV2ItemFieldSingleSelectValue {
									optionId
									name
									field {
										... on ProjectV2SingleSelectField {
											id
											name
											dataType
											options {
												id
												name
											}
										}
									}
								}
								... on ProjectV2ItemFieldTextValue {
									text
									field {
										... on ProjectV2FieldCommon {
											id
											name
											dataType
										}
									}
								}
								... on ProjectV2ItemFieldNumberValue {
									number
									field {
										... on ProjectV2FieldCommon {
											id
											name
											dataType
										}
									}
								}
								... on ProjectV2ItemFieldDateValue {
									date
									field {
										... on ProjectV2FieldCommon {
											id
											name
											dataType
										}
									}
								}
							}
						}
						content {
							__typename
							... on Issue {
								id
								title
								number
								state
								repository {
									nameWithOwner
								}
							}
							... on PullRequest {
								id
								title
								number
								state
								repository {
									nameWithOwner
								}
							}
							... on DraftIssue {
								id
								title
							}
						}
					}
				}
			}
		}
	}
`

type itemNode struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	IsArchived  bool      `json:"isArchived"`
	UpdatedAt   time.Time `json:"updatedAt"`
	FieldValues struct {
		Nodes []struct {
			Typename string     `json:"__typename"`
			OptionID string     `json:"optionId"`
			Name     string     `json:"name"`
			Text     string     `json:"text"`
			Number   *float64   `json:"number"`
			Date     string     `json:"date"`
			Field    *fieldNode `json:"field"`
		} `json:"nodes"`
	} `json:"fieldValues"`
	Content *struct {
		Typename   string `json:"__typename"`
		ID         string `json:"id"`
		Title      string `json:"title"`
		Number     int    `json:"number"`
		State      string `json:"state"`
		Repository *struct {
			NameWithOwner string `json:"nameWithOwner"`
		} `json:"repository"`
	} `json:"content"`
}

func (n itemNode) toDomain() domain.BoardItem {
	item := domain.BoardItem{
		ID:        n.ID,
		Archived:  n.IsArchived,
		UpdatedAt: n.UpdatedAt,
		Type:      n.Type,
	}

	for _, fv := range n.FieldValues.Nodes {
		// Values of field kinds not selected above arrive as empty objects
		if fv.Field == nil {
			continue
		}
		value := domain.FieldValue{
			Field:    fv.Field.toDomain(),
			OptionID: fv.OptionID,
			Name:     fv.Name,
			Text:     fv.Text,
		}
		switch {
		case fv.Number != nil:
			value.Text = strconv.FormatFloat(*fv.Number, 'f', -1, 64)
		case fv.Date != "":
			value.Text = fv.Date
		}
		item.FieldValues = append(item.FieldValues, value)
	}

	if n.Content != nil && n.Content.Typename != "" {
		item.Content = &domain.Content{
			Type:   n.Content.Typename,
			ID:     n.Content.ID,
			Number: n.Content.Number,
			Title:  n.Content.Title,
			State:  n.Content.State,
		}
		if n.Content.Repository != nil {
			item.Content.Repo = n.Content.Repository.NameWithOwner
		}
		item.Title = n.Content.Title
	}
	if item.Title == "" {
		if title, ok := item.FieldValueByName("Title"); ok {
			item.Title = title.Text
		}
	}

	return item
}

// ProjectItems fetches one page of project items with their field values and
// linked content.
func (c *Client) ProjectItems(ctx context.Context, projectID string, after string, first int) (pager.Page[domain.BoardItem], error) {
	req := graphql.NewRequest(projectItemsQuery)
	req.Var("projectId", projectID)
	req.Var("first", first)
	if after != "" {
		req.Var("after", after)
	} else {
		req.Var("after", nil)
	}

	var resp struct {
		Node *struct {
			Items *struct {
				PageInfo pageInfo   `json:"pageInfo"`
				Nodes    []itemNode `json:"nodes"`
			} `json:"items"`
		} `json:"node"`
	}

	resource := "project " + projectID
	if err := c.makeRequest(ctx, req, &resp, resource); err != nil {
		return pager.Page[domain.BoardItem]{}, fmt.Errorf("failed to get items: %w", err)
	}
	if resp.Node == nil || resp.Node.Items == nil {
		return pager.Page[domain.BoardItem]{}, NewSchemaError(resource, "response has no project items")
	}

	items := make([]domain.BoardItem, 0, len(resp.Node.Items.Nodes))
	for _, node := range resp.Node.Items.Nodes {
		items = append(items, node.toDomain())
	}

	return pager.Page[domain.BoardItem]{
		Nodes:       items,
		HasNextPage: resp.Node.Items.PageInfo.HasNextPage,
		EndCursor:   resp.Node.Items.PageInfo.EndCursor,
	}, nil
}

// RepositoryIssues fetches one page of a repository's issues updated since the given time.
func (c *Client) RepositoryIssues(ctx context.Context, org, repo string, since time.Time, after string, first int) (pager.Page[domain.RepositoryIssue], error) {
	req := graphql.NewRequest(`
		query($org: String!, $repo: String!, $first: Int!, $after: String, $since: DateTime!) {
			organization(login: $org) {
				repository(name: $repo) {
					issues(first: $first, after: $after, filterBy: {since: $since}) {
						pageInfo {
							hasNextPage
							endCursor
						}
						nodes {
							id
							title
							number
							createdAt
							state
						}
					}
				}
			}
		}
	`)
	req.Var("org", org)
	req.Var("repo", repo)
	req.Var("first", first)
	req.Var("since", since.UTC().Format(SinceLayout))
	if after != "" {
		req.Var("after", after)
	} else {
		req.Var("after", nil)
	}

	var resp struct {
		Organization *struct {
			Repository *struct {
				Issues *struct {
					PageInfo pageInfo `json:"pageInfo"`
					Nodes    []struct {
						ID        string    `json:"id"`
						Title     string    `json:"title"`
						Number    int       `json:"number"`
						CreatedAt time.Time `json:"createdAt"`
						State     string    `json:"state"`
					} `json:"nodes"`
				} `json:"issues"`
			} `json:"repository"`
		} `json:"organization"`
	}

	resource := fmt.Sprintf("repository %s/%s", org, repo)
	if err := c.makeRequest(ctx, req, &resp, resource); err != nil {
		return pager.Page[domain.RepositoryIssue]{}, fmt.Errorf("failed to get issues: %w", err)
	}
	if resp.Organization == nil || resp.Organization.Repository == nil || resp.Organization.Repository.Issues == nil {
		return pager.Page[domain.RepositoryIssue]{}, NewSchemaError(resource, "response has no repository issues")
	}

	conn := resp.Organization.Repository.Issues
	issues := make([]domain.RepositoryIssue, 0, len(conn.Nodes))
	for _, node := range conn.Nodes {
		issues = append(issues, domain.RepositoryIssue{
			ID:        node.ID,
			Title:     node.Title,
			Number:    node.Number,
			CreatedAt: node.CreatedAt,
			State:     node.State,
			Repo:      org + "/" + repo,
		})
	}

	return pager.Page[domain.RepositoryIssue]{
		Nodes:       issues,
		HasNextPage: conn.PageInfo.HasNextPage,
		EndCursor:   conn.PageInfo.EndCursor,
	}, nil
}
