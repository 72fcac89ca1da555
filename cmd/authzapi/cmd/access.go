package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/J41RO/MeStore-sub006/internal/access"
	"github.com/J41RO/MeStore-sub006/internal/services/authz"
)

var (
	checkPrincipal  string
	checkPermission string
	checkDepartment string
	checkIP         string
	checkApproval   string
	checkMFA        bool
	checkAttrs      []string

	grantActor     string
	grantTarget    string
	grantPerm      string
	grantExpiresAt string

	revokeActor  string
	revokeTarget string
	revokePerm   string

	effectivePrincipal string
	effectiveInherited bool
)

var accessCmd = &cobra.Command{
	Use:   "access",
	Short: "Access control commands",
	Long:  `Commands for checking permissions and managing grants from the command line.`,
}

var accessCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether a principal holds a permission",
	Long: `Runs one authorization decision and prints it as JSON.
A denied decision is a normal outcome, not a command failure.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		key, err := access.ParseKey(checkPermission)
		if err != nil {
			return err
		}

		checkCtx, err := buildCheckContext()
		if err != nil {
			return err
		}

		eng, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.Close()

		decision, err := eng.svc.Validate(ctx, checkPrincipal, key, checkCtx)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(decision, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode decision: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}

// buildCheckContext assembles the optional request context from the check
// flags, or returns nil when no context flag was set at all.
func buildCheckContext() (*authz.CheckContext, error) {
	if checkDepartment == "" && checkIP == "" && checkApproval == "" && !checkMFA && len(checkAttrs) == 0 {
		return nil, nil
	}

	checkCtx := &authz.CheckContext{
		IPAddress:    checkIP,
		DepartmentID: checkDepartment,
		MFAVerified:  checkMFA,
		ApprovalRef:  checkApproval,
	}
	if len(checkAttrs) > 0 {
		checkCtx.Attributes = make(map[string]any, len(checkAttrs))
		for _, pair := range checkAttrs {
			k, v, ok := strings.Cut(pair, "=")
			if !ok || k == "" {
				return nil, fmt.Errorf("invalid --attr %q, expected key=value", pair)
			}
			checkCtx.Attributes[k] = v
		}
	}
	return checkCtx, nil
}

var accessGrantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Grant a permission to a principal",
	Long: `Issues an active grant of a catalog permission to the target principal.
Granting a permission the target already holds reports success without
creating a second grant.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var expiresAt *time.Time
		if grantExpiresAt != "" {
			t, err := time.Parse(time.RFC3339, grantExpiresAt)
			if err != nil {
				return fmt.Errorf("invalid --expires-at: %w", err)
			}
			expiresAt = &t
		}

		eng, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.Close()

		result, err := eng.svc.Grant(ctx, grantActor, grantTarget, grantPerm, expiresAt)
		if err != nil {
			return err
		}

		if !result.Changed {
			fmt.Printf("Principal %s already holds %s, nothing to do\n", grantTarget, grantPerm)
			return nil
		}
		if result.Grant.ExpiresAt != nil {
			fmt.Printf("Granted %s to %s (grant %s, expires %s)\n",
				grantPerm, grantTarget, result.Grant.ID, result.Grant.ExpiresAt.UTC().Format(time.RFC3339))
		} else {
			fmt.Printf("Granted %s to %s (grant %s)\n", grantPerm, grantTarget, result.Grant.ID)
		}
		return nil
	},
}

var accessRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke a granted permission",
	Long: `Revokes the target principal's active grant of a catalog permission.
Revoking a permission the target does not hold reports success without
touching any grant.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		eng, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.Close()

		result, err := eng.svc.Revoke(ctx, revokeActor, revokeTarget, revokePerm)
		if err != nil {
			return err
		}

		if !result.Changed {
			fmt.Printf("Principal %s holds no active grant of %s, nothing to do\n", revokeTarget, revokePerm)
			return nil
		}
		fmt.Printf("Revoked %s from %s (grant %s)\n", revokePerm, revokeTarget, result.Grant.ID)
		return nil
	},
}

var accessEffectiveCmd = &cobra.Command{
	Use:   "effective",
	Short: "List a principal's effective permissions",
	Long: `Lists every permission the principal can currently exercise: direct
active grants plus, unless disabled, tier-inherited catalog permissions.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		eng, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.Close()

		permissions, err := eng.svc.ListEffective(ctx, effectivePrincipal, effectiveInherited)
		if err != nil {
			return err
		}

		if len(permissions) == 0 {
			fmt.Println("No effective permissions")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "PERMISSION\tSOURCE\tCLEARANCE\tRISK\tEXPIRES")
		for _, p := range permissions {
			expires := "-"
			if p.ExpiresAt != nil {
				expires = p.ExpiresAt.UTC().Format(time.RFC3339)
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				p.Permission.Name,
				p.Source,
				p.Permission.RequiredClearance,
				p.Permission.RiskLevel,
				expires,
			)
		}
		_ = w.Flush()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(accessCmd)
	accessCmd.AddCommand(accessCheckCmd)
	accessCmd.AddCommand(accessGrantCmd)
	accessCmd.AddCommand(accessRevokeCmd)
	accessCmd.AddCommand(accessEffectiveCmd)

	accessCheckCmd.Flags().StringVar(&checkPrincipal, "principal", "", "Principal ID to check")
	accessCheckCmd.Flags().StringVar(&checkPermission, "permission", "", "Permission name (resource.action.scope)")
	accessCheckCmd.Flags().StringVar(&checkDepartment, "department", "", "Department ID the operation targets")
	accessCheckCmd.Flags().StringVar(&checkIP, "ip", "", "Source IP address for condition checks")
	accessCheckCmd.Flags().StringVar(&checkApproval, "approval", "", "Approval reference for permissions that require one")
	accessCheckCmd.Flags().BoolVar(&checkMFA, "mfa", false, "Mark the request as MFA-verified")
	accessCheckCmd.Flags().StringArrayVar(&checkAttrs, "attr", nil, "Context attribute as key=value (repeatable)")
	_ = accessCheckCmd.MarkFlagRequired("principal")
	_ = accessCheckCmd.MarkFlagRequired("permission")

	accessGrantCmd.Flags().StringVar(&grantActor, "actor", access.SystemActorID, "Principal ID performing the grant")
	accessGrantCmd.Flags().StringVar(&grantTarget, "target", "", "Principal ID receiving the grant")
	accessGrantCmd.Flags().StringVar(&grantPerm, "permission", "", "Permission name (resource.action.scope)")
	accessGrantCmd.Flags().StringVar(&grantExpiresAt, "expires-at", "", "Expiry as RFC 3339 timestamp (never expires if omitted)")
	_ = accessGrantCmd.MarkFlagRequired("target")
	_ = accessGrantCmd.MarkFlagRequired("permission")

	accessRevokeCmd.Flags().StringVar(&revokeActor, "actor", access.SystemActorID, "Principal ID performing the revocation")
	accessRevokeCmd.Flags().StringVar(&revokeTarget, "target", "", "Principal ID losing the grant")
	accessRevokeCmd.Flags().StringVar(&revokePerm, "permission", "", "Permission name (resource.action.scope)")
	_ = accessRevokeCmd.MarkFlagRequired("target")
	_ = accessRevokeCmd.MarkFlagRequired("permission")

	accessEffectiveCmd.Flags().StringVar(&effectivePrincipal, "principal", "", "Principal ID to list")
	accessEffectiveCmd.Flags().BoolVar(&effectiveInherited, "include-inherited", true, "Include tier-inherited permissions")
	_ = accessEffectiveCmd.MarkFlagRequired("principal")
}
