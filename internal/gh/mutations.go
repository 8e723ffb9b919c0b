package gh

import (
	"context"
	"fmt"

	"github.com/machinebox/graphql"
)

// UpdateItemField updates a project item's SINGLE_SELECT field value.
// This is used to move items between status columns.
func (c *Client) UpdateItemField(ctx context.Context, projectID string, itemID string, fieldID string, optionID string) error {
	req := graphql.NewRequest(`
		mutation($projectId: ID!, $itemId: ID!, $fieldId: ID!, $value: ProjectV2FieldValue!) {
			updateProjectV2ItemFieldValue(
				input: {
					projectId: $projectId
					itemId: $itemId
					fieldId: $fieldId
					value: $value
				}
			) {
				projectV2Item {
					id
				}
			}
		}
	`)

	req.Var("projectId", projectID)
	req.Var("itemId", itemID)
	req.Var("fieldId", fieldID)
	req.Var("value", map[string]interface{}{
		"singleSelectOptionId": optionID,
	})

	var resp struct {
		UpdateProjectV2ItemFieldValue struct {
			ProjectV2Item struct {
				ID string `json:"id"`
			} `json:"projectV2Item"`
		} `json:"updateProjectV2ItemFieldValue"`
	}

	if err := c.makeRequest(ctx, req, &resp, "item "+itemID); err != nil {
		return fmt.Errorf("failed to update item field: %w", err)
	}

	return nil
}

// AddItem attaches an issue or pull request to the project and returns the
// project item ID. Adding content that is already on the board returns the
// existing item.
func (c *Client) AddItem(ctx context.Context, projectID string, contentID string) (string, error) {
	req := graphql.NewRequest(`
		mutation($projectId: ID!, $contentId: ID!) {
			addProjectV2ItemById(input: {projectId: $projectId, contentId: $contentId}) {
				item {
					id
				}
			}
		}
	`)

	req.Var("projectId", projectID)
	req.Var("contentId", contentID)

	var resp struct {
		AddProjectV2ItemByID *struct {
			Item *struct {
				ID string `json:"id"`
			} `json:"item"`
		} `json:"addProjectV2ItemById"`
	}

	resource := "content " + contentID
	if err := c.makeRequest(ctx, req, &resp, resource); err != nil {
		return "", fmt.Errorf("failed to add item: %w", err)
	}
	if resp.AddProjectV2ItemByID == nil || resp.AddProjectV2ItemByID.Item == nil {
		return "", NewSchemaError(resource, "mutation returned no item")
	}

	return resp.AddProjectV2ItemByID.Item.ID, nil
}

// DeleteItem removes an item from the project. The linked issue or pull request is untouched.
func (c *Client) DeleteItem(ctx context.Context, projectID string, itemID string) error {
	req := graphql.NewRequest(`
		mutation($projectId: ID!, $itemId: ID!) {
			deleteProjectV2Item(input: {projectId: $projectId, itemId: $itemId}) {
				deletedItemId
			}
		}
	`)

	req.Var("projectId", projectID)
	req.Var("itemId", itemID)

	var resp struct {
		DeleteProjectV2Item struct {
			DeletedItemID string `json:"deletedItemId"`
		} `json:"deleteProjectV2Item"`
	}

	if err := c.makeRequest(ctx, req, &resp, "item "+itemID); err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}

	return nil
}
