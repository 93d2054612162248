package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aboutme/cards/internal/auth"
	"github.com/aboutme/cards/internal/config"
	"github.com/aboutme/cards/internal/directory"
	"github.com/aboutme/cards/internal/profile"
	"github.com/aboutme/cards/internal/storage"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orgPath(orgID string, parts ...string) string {
	p := "/orgs/" + url.PathEscape(orgID)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage your own profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show your profile as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/me/profile")
		if err != nil {
			return err
		}

		var p profile.Profile
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), p)
	},
}

var profileSetNameCmd = &cobra.Command{
	Use:   "set-name <name>",
	Short: "Create your profile or change its display name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/me/profile")
		if err != nil {
			return err
		}
		var p profile.Profile
		if err := decodeJSON(resp, &p); err != nil {
			// A missing profile is created.
			var apiErr *apiError
			if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
				return err
			}
		}

		p.Core.Name = args[0]
		resp, err = client.put(cmd.Context(), "/me/profile", p)
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}

		printSuccess("Name set to %s", args[0])
		return nil
	},
}

var profileImportCmd = &cobra.Command{
	Use:   "import <resume.pdf>",
	Short: "Add the known skills found in a PDF résumé to your profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Uploading %s", filepath.Base(args[0]))
		resp, err := client.upload(cmd.Context(), "/me/profile/import", "application/pdf", data)
		if err != nil {
			return err
		}

		var result directory.ImportResult
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Added) == 0 {
			printWarning("No new skills found (matched: %s)", joinOrDash(result.Matched))
			return nil
		}
		printSuccess("Added %s", strings.Join(result.Added, ", "))
		return nil
	},
}

func init() {
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileSetNameCmd)
	profileCmd.AddCommand(profileImportCmd)
}

// --- browse ---

var browseCmd = &cobra.Command{
	Use:   "browse <org>",
	Short: "List the cards of an organization",
	Long: `List the cards of an organization.

Examples:
  cards browse acme
  cards browse acme --skills Go,SQL --sort skillCount --dir desc
  cards browse acme --q engineer --limit 10 --offset 10`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		for _, name := range []string{"q", "skills", "teams", "sort", "dir"} {
			if v, _ := cmd.Flags().GetString(name); v != "" {
				q.Set(name, v)
			}
		}
		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
			q.Set("limit", strconv.Itoa(limit))
		}
		if offset, _ := cmd.Flags().GetInt("offset"); offset > 0 {
			q.Set("offset", strconv.Itoa(offset))
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := orgPath(args[0], "profiles")
		if len(q) > 0 {
			path += "?" + q.Encode()
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var result directory.BrowseResult
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(out, result)
		}

		if len(result.Items) == 0 {
			fmt.Fprintln(out, "No cards match.")
			return nil
		}
		rows := make([][]string, 0, len(result.Items))
		for _, c := range result.Items {
			rows = append(rows, []string{
				c.ID,
				c.Profile.Core.Name,
				c.Profile.Core.MainTitle,
				joinOrDash(c.Profile.Core.MainSkills),
				joinOrDash(c.Profile.Core.TeamIDs),
			})
		}
		printTable(out, []string{"ID", "NAME", "TITLE", "SKILLS", "TEAMS"}, rows)
		fmt.Fprintf(out, "\n%d of %d", len(result.Items), result.Total)
		if result.HasMore {
			fmt.Fprint(out, " (more available)")
		}
		fmt.Fprintln(out)
		return nil
	},
}

func init() {
	browseCmd.Flags().String("q", "", "search text (name, title, skills)")
	browseCmd.Flags().String("skills", "", "comma-separated skills; a card must have at least one of them")
	browseCmd.Flags().String("teams", "", "comma-separated team ids; a card must be in at least one of them")
	browseCmd.Flags().String("sort", "", "sort field: name, title, skillCount, teamCount")
	browseCmd.Flags().String("dir", "", "sort direction: asc or desc")
	browseCmd.Flags().Int("limit", 0, "page size (server default when 0)")
	browseCmd.Flags().Int("offset", 0, "number of cards to skip")
	browseCmd.Flags().Bool("json", false, "print the raw JSON result")
}

// --- compare ---

var compareCmd = &cobra.Command{
	Use:   "compare <org> <user-id> <user-id>...",
	Short: "Compare what members have in common",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), orgPath(args[0], "compare"), map[string]any{"ids": args[1:]})
		if err != nil {
			return err
		}

		var result directory.Comparison
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, p := range result.Pairs {
			fmt.Fprintf(out, "%s ↔ %s  %s\n", p.A, p.B, colorize(colorBold, fmt.Sprintf("%d%%", p.Result.SimilarityScore)))
			fmt.Fprintf(out, "  skills:    %s\n", joinOrDash(p.Result.CommonSkills))
			fmt.Fprintf(out, "  interests: %s\n", joinOrDash(p.Result.CommonInterests))
			fmt.Fprintf(out, "  teams:     %s\n", joinOrDash(p.Result.CommonTeams))
		}
		if len(result.IDs) > 2 {
			fmt.Fprintf(out, "\nShared by all (%s)  %s\n", strings.Join(result.IDs, ", "),
				colorize(colorBold, fmt.Sprintf("%d%%", result.GroupSimilarity)))
			fmt.Fprintf(out, "  skills:    %s\n", joinOrDash(result.Common.Skills))
			fmt.Fprintf(out, "  interests: %s\n", joinOrDash(result.Common.Interests))
			fmt.Fprintf(out, "  teams:     %s\n", joinOrDash(result.Common.Teams))
		}
		return nil
	},
}

// --- graph ---

var graphCmd = &cobra.Command{
	Use:   "graph <org>",
	Short: "Show an organization's skills graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		top, _ := cmd.Flags().GetInt("top")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := orgPath(args[0], "skills-graph")
		if top > 0 {
			path += "?top=" + strconv.Itoa(top)
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var result directory.GraphResult
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(out, result)
		}

		rows := make([][]string, 0, len(result.Graph.Nodes))
		for _, n := range result.Graph.Nodes {
			rows = append(rows, []string{n.Label, strconv.Itoa(n.Count)})
		}
		printTable(out, []string{"SKILL", "MEMBERS"}, rows)

		if len(result.Graph.Edges) > 0 {
			fmt.Fprintln(out)
			rows = rows[:0]
			for _, e := range result.Graph.Edges {
				rows = append(rows, []string{e.Source + " + " + e.Target, strconv.Itoa(e.Weight)})
			}
			printTable(out, []string{"PAIR", "MEMBERS"}, rows)
		}

		if result.Live {
			fmt.Fprintln(out, "\n(built on request)")
		} else {
			fmt.Fprintf(out, "\n(built %s)\n", result.BuiltAt.Local().Format(time.RFC822))
		}
		return nil
	},
}

func init() {
	graphCmd.Flags().Int("top", 0, "only the N most frequent skills")
	graphCmd.Flags().Bool("json", false, "print the raw JSON result")
}

// --- orgs ---

var orgsCmd = &cobra.Command{
	Use:   "orgs",
	Short: "List or create organizations",
}

var orgsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your organizations",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/orgs")
		if err != nil {
			return err
		}

		var result struct {
			Organizations []storage.OrgWithRole `json:"organizations"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(result.Organizations) == 0 {
			fmt.Fprintln(out, "No organizations.")
			return nil
		}
		rows := make([][]string, 0, len(result.Organizations))
		for _, o := range result.Organizations {
			rows = append(rows, []string{o.ID, o.Name, o.Role})
		}
		printTable(out, []string{"ID", "NAME", "ROLE"}, rows)
		return nil
	},
}

var orgsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an organization and become its admin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/orgs", map[string]string{"name": args[0]})
		if err != nil {
			return err
		}

		var org storage.Organization
		if err := decodeJSON(resp, &org); err != nil {
			return err
		}

		printSuccess("Created %s (%s)", org.Name, org.ID)
		return nil
	},
}

func init() {
	orgsCmd.AddCommand(orgsListCmd)
	orgsCmd.AddCommand(orgsCreateCmd)
}

// --- members ---

var membersCmd = &cobra.Command{
	Use:   "members",
	Short: "Manage organization members",
}

var membersAddCmd = &cobra.Command{
	Use:   "add <org> <user-id>",
	Short: "Add a member (admins only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, _ := cmd.Flags().GetString("role")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), orgPath(args[0], "members"), map[string]string{
			"user_id": args[1],
			"role":    role,
		})
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}

		printSuccess("Added %s to %s as %s", args[1], args[0], role)
		return nil
	},
}

var membersRemoveCmd = &cobra.Command{
	Use:   "remove <org> <user-id>",
	Short: "Remove a member (admins, or yourself)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), orgPath(args[0], "members", args[1]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}

		printSuccess("Removed %s from %s", args[1], args[0])
		return nil
	},
}

func init() {
	membersAddCmd.Flags().String("role", storage.RoleMember, "role: member or admin")
	membersCmd.AddCommand(membersAddCmd)
	membersCmd.AddCommand(membersRemoveCmd)
}

// --- token ---

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Development tokens (jwt auth mode)",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue <user-id>",
	Short: "Sign a bearer token with the configured JWT secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		cfg, err := config.LoadClient()
		if err != nil {
			return err
		}
		if cfg.Auth.Mode != config.AuthJWT {
			return fmt.Errorf("tokens can only be issued in %q auth mode (current: %q)", config.AuthJWT, cfg.Auth.Mode)
		}

		v, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret)
		if err != nil {
			return err
		}
		token, err := v.Issue(args[0], email, ttl)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenIssueCmd.Flags().String("email", "", "email claim")
	tokenIssueCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	tokenCmd.AddCommand(tokenIssueCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadClient()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value in the config file.\n\nKeys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
