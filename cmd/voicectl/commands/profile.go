package commands

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"voice-dashboard/pkg/profileservice"
)

// profileFields are the columns 'profile set' may write, with whether the
// value is a boolean.
var profileFields = map[string]bool{
	"full_name":           false,
	"phone":               false,
	"company":             false,
	"job_title":           false,
	"bio":                 false,
	"timezone":            false,
	"language":            false,
	"email_notifications": true,
	"sms_notifications":   true,
	"marketing_emails":    true,
	"login_alerts":        true,
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show, edit and delete your profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show your profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()

		svc, err := a.profileService()
		if err != nil {
			return err
		}
		ident, _ := a.identity.Current()
		p, err := svc.Get(cmd.Context(), ident.ID)
		if err != nil {
			return err
		}
		if p == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "No profile yet. Create one with: voicectl profile set full_name=<name>")
			return nil
		}
		return printValue(cmd.OutOrStdout(), p)
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <field=value>...",
	Short: "Update profile fields",
	Long: `Update profile fields. A missing profile is created with the default
notification settings first.

Examples:
  voicectl profile set full_name="Ada Lovelace" timezone=Europe/London
  voicectl profile set marketing_emails=false`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fields, err := parseProfileFields(args)
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()

		svc, err := a.profileService()
		if err != nil {
			return err
		}
		ident, _ := a.identity.Current()
		p, err := svc.Update(cmd.Context(), ident.ID, ident.Email, fields)
		if err != nil {
			return err
		}
		return printValue(cmd.OutOrStdout(), p)
	},
}

var profileDeleteYes bool

var profileDeleteCmd = &cobra.Command{
	Use:   "delete [user-id]",
	Short: "Delete your profile, or another user's as an admin",
	Long: `Delete a profile row and its avatar. Without an argument your own profile
is deleted. Admins may pass the id of another user.

Examples:
  voicectl profile delete --yes
  voicectl profile delete 0b6c5e0e-3c1a-4a43-9d0f-1e0c8f1f2a10`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()

		ident, _ := a.identity.Current()
		target := ident.ID
		if len(args) == 1 {
			target = args[0]
		}
		if !profileDeleteYes {
			answer, err := prompt(bufio.NewReader(cmd.InOrStdin()), cmd.ErrOrStderr(), fmt.Sprintf("Delete profile %s? [y/N] ", target))
			if err != nil {
				return err
			}
			if ans := strings.ToLower(answer); ans != "y" && ans != "yes" {
				return errAborted
			}
		}

		svc, err := a.profileService()
		if err != nil {
			return err
		}
		if err := svc.Delete(cmd.Context(), ident, target); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted profile %s\n", target)
		return nil
	},
}

var errAborted = errors.New("aborted")

func parseProfileFields(args []string) (map[string]any, error) {
	fields := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected field=value, got %q", arg)
		}
		isBool, known := profileFields[key]
		if !known {
			return nil, fmt.Errorf("unknown profile field %q (one of %s)", key, strings.Join(profileFieldNames(), ", "))
		}
		if !isBool {
			fields[key] = value
			continue
		}
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		fields[key] = b
	}
	return fields, nil
}

func profileFieldNames() []string {
	names := make([]string, 0, len(profileFields))
	for name := range profileFields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var avatarCmd = &cobra.Command{
	Use:   "avatar",
	Short: "Set or remove your avatar image",
}

var avatarSetCmd = &cobra.Command{
	Use:   "set <image>",
	Short: "Upload an image as your avatar",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return err
		}
		head := make([]byte, 512)
		n, _ := f.Read(head)
		if _, err := f.Seek(0, 0); err != nil {
			return err
		}

		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()

		svc, err := a.profileService()
		if err != nil {
			return err
		}
		ident, _ := a.identity.Current()
		url, err := svc.UploadAvatar(cmd.Context(), ident.ID, ident.Email, profileservice.Avatar{
			File:        f,
			Size:        info.Size(),
			FileName:    filepath.Base(args[0]),
			ContentType: contentTypeOf(args[0], head[:n]),
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), url)
		return nil
	},
}

var avatarRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove your avatar image",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()

		svc, err := a.profileService()
		if err != nil {
			return err
		}
		ident, _ := a.identity.Current()
		p, err := svc.Get(cmd.Context(), ident.ID)
		if err != nil {
			return err
		}
		if p == nil || p.AvatarURL == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "No avatar set")
			return nil
		}
		if err := svc.RemoveAvatar(cmd.Context(), ident.ID, p.AvatarURL); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Avatar removed")
		return nil
	},
}

func init() {
	avatarCmd.AddCommand(avatarSetCmd, avatarRemoveCmd)
	profileDeleteCmd.Flags().BoolVarP(&profileDeleteYes, "yes", "y", false, "do not ask for confirmation")
	profileCmd.AddCommand(profileShowCmd, profileSetCmd, profileDeleteCmd, avatarCmd)
	rootCmd.AddCommand(profileCmd)
}
